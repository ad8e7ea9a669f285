package server

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStaticFS() fs.FS {
	return fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>dashboard</html>")},
	}
}

func TestNew_ServesAPIRoutesAndStaticAssetsTogether(t *testing.T) {
	app, _ := newTestAppContext(t)
	srv := New(Config{
		Addr:    "127.0.0.1:0",
		Log:     zerolog.Nop(),
		Store:   app.store,
		Sensors: app.sensors,
		Weather: app.weather,
		Relay:   app.relay,
		Lat:     app.lat,
		Lon:     app.lon,
		Static:  newTestStaticFS(),
	})

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	apiResp, err := http.Get(ts.URL + "/api/sensors")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, apiResp.StatusCode)
	apiResp.Body.Close()

	staticResp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, staticResp.StatusCode)
	staticResp.Body.Close()
}

func TestServer_StartAndShutdown(t *testing.T) {
	app, _ := newTestAppContext(t)
	srv := New(Config{
		Addr:    "127.0.0.1:0",
		Log:     zerolog.Nop(),
		Store:   app.store,
		Sensors: app.sensors,
		Weather: app.weather,
		Relay:   app.relay,
		Lat:     app.lat,
		Lon:     app.lon,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.ErrorIs(t, <-errCh, http.ErrServerClosed)
}
