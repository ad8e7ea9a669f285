package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tommyskogstad/geoloop/internal/database"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/relay"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/store"
)

type fakeForecaster struct {
	forecast *model.WeatherForecast
	err      error
}

func (f *fakeForecaster) FetchForecast(ctx context.Context, lat, lon float64) (*model.WeatherForecast, error) {
	return f.forecast, f.err
}

func sampleForecast() *model.WeatherForecast {
	temp := 2.5
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	timeseries := make([]model.WeatherSnapshot, 0, 30)
	for i := 0; i < 30; i++ {
		t := temp + float64(i)
		timeseries = append(timeseries, model.WeatherSnapshot{Time: base.Add(time.Duration(i) * time.Hour), AirTemperature: &t})
	}
	return &model.WeatherForecast{Current: timeseries[0], Timeseries: timeseries[1:]}
}

func newTestAppContext(t *testing.T) (*appContext, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "server-test.db")
	db, err := database.New(database.Config{Path: dbPath, Name: "geoloop"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	set := sensors.NewSet(map[string]string{
		model.SensorLoopInlet: "", model.SensorLoopOutlet: "", model.SensorHPInlet: "",
		model.SensorHPOutlet: "", model.SensorTank: "",
	})

	return &appContext{
		store:   st,
		sensors: set,
		weather: &fakeForecaster{forecast: sampleForecast()},
		relay:   relay.NewStub(),
		lat:     59.91,
		lon:     10.75,
		log:     zerolog.Nop(),
	}, st
}

func newTestRouter(t *testing.T) (*appContext, http.Handler) {
	app, _ := newTestAppContext(t)
	r := chi.NewRouter()
	app.registerRoutes(r)
	return app, r
}

func decodeJSON(t *testing.T, body *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body.Body).Decode(out))
}

func TestHandleStatus_ReturnsWeatherHeatingAndSensors(t *testing.T) {
	_, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decodeJSON(t, w, &body)
	require.Contains(t, body, "weather")
	require.Contains(t, body, "heating")
	require.Contains(t, body, "sensors")

	heating := body["heating"].(map[string]interface{})
	require.Equal(t, false, heating["on"])
}

func TestHandleWeather_ReturnsCurrentAndCappedForecast(t *testing.T) {
	_, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/weather", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Current  map[string]interface{}   `json:"current"`
		Forecast []map[string]interface{} `json:"forecast"`
	}
	decodeJSON(t, w, &body)
	require.Len(t, body.Forecast, 24, "forecast must be capped to the first 24 entries")
}

func TestHandleWeather_UpstreamFailureReturns200WithErrorBody(t *testing.T) {
	app, r := newTestRouter(t)
	app.weather = &fakeForecaster{err: errors.New("upstream unavailable")}

	req := httptest.NewRequest(http.MethodGet, "/api/weather", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decodeJSON(t, w, &body)
	require.Equal(t, "upstream unavailable", body["error"])
}

func TestHandleSensors_ReturnsAllFiveLogicalNames(t *testing.T) {
	_, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sensors", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sensors map[string]*float64 `json:"sensors"`
	}
	decodeJSON(t, w, &body)
	for _, name := range model.SensorNames {
		require.Contains(t, body.Sensors, name)
	}
}

func TestHandleHeatingOn_TurnsOnAndLogsManualEvent(t *testing.T) {
	app, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/heating/on", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Heating struct {
			On bool `json:"on"`
		} `json:"heating"`
	}
	decodeJSON(t, w, &body)
	require.True(t, body.Heating.On)
	require.True(t, app.relay.IsOn())

	events, err := app.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventManualOn, events[0].EventType)
}

func TestHandleHeatingOff_WithoutConfiguredRelayReturnsErrorAndNoStateChange(t *testing.T) {
	app, _ := newTestAppContext(t)
	app.relay = nil
	r := chi.NewRouter()
	app.registerRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/heating/off", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decodeJSON(t, w, &body)
	require.Equal(t, "heating controller not configured", body["error"])

	events, err := app.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestHandleLog_ReturnsWeatherSensorsAndEventsNewestFirst(t *testing.T) {
	app, st := newTestAppContext(t)
	r := chi.NewRouter()
	app.registerRoutes(r)

	require.NoError(t, st.LogEvent(context.Background(), model.EventManualOn, "first", nil))
	require.NoError(t, st.LogEvent(context.Background(), model.EventManualOff, "second", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/log?limit=10", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []struct {
			Message string `json:"message"`
		} `json:"events"`
	}
	decodeJSON(t, w, &body)
	require.Len(t, body.Events, 2)
	require.Equal(t, "second", body.Events[0].Message, "events must come back newest first")
}

func TestHandleHistory_ReturnsSensorsPeriodsAndHeatingState(t *testing.T) {
	app, st := newTestAppContext(t)
	r := chi.NewRouter()
	app.registerRoutes(r)

	now := time.Now()
	require.NoError(t, st.LogSensor(context.Background(), model.SensorTank, 42.0, &now))

	req := httptest.NewRequest(http.MethodGet, "/api/history?hours=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sensors        []map[string]interface{} `json:"sensors"`
		HeatingPeriods []map[string]interface{} `json:"heating_periods"`
		HeatingOn      bool                      `json:"heating_on"`
	}
	decodeJSON(t, w, &body)
	require.Len(t, body.Sensors, 1)
	require.False(t, body.HeatingOn)
}
