package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `{
  "properties": {
    "timeseries": [
      {
        "time": "2026-01-01T00:00:00Z",
        "data": {
          "instant": {"details": {"air_temperature": 1.5, "relative_humidity": 80, "wind_speed": 3.2}},
          "next_1_hours": {"details": {"precipitation_amount": 0.2}}
        }
      },
      {
        "time": "2026-01-01T01:00:00Z",
        "data": {
          "instant": {"details": {"air_temperature": 2.0}}
        }
      }
    ]
  }
}`

func newTestServer(t *testing.T, expires string, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "geoloop-test/1.0", r.Header.Get("User-Agent"))
		if expires != "" {
			w.Header().Set("Expires", expires)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleBody)
	}))
}

func TestFetchForecast_ParsesCurrentAndTimeseries(t *testing.T) {
	var hits int32
	srv := newTestServer(t, time.Now().Add(time.Hour).Format(http.TimeFormat), &hits)
	defer srv.Close()

	c := NewClient("geoloop-test/1.0", zerolog.Nop())
	c.httpClient = srv.Client()
	overrideURL(t, srv.URL)

	forecast, err := c.FetchForecast(context.Background(), 59.9, 10.7)
	require.NoError(t, err)

	require.NotNil(t, forecast.Current.AirTemperature)
	assert.InDelta(t, 1.5, *forecast.Current.AirTemperature, 0.0001)
	require.NotNil(t, forecast.Current.PrecipitationAmount)

	require.Len(t, forecast.Timeseries, 1)
	require.NotNil(t, forecast.Timeseries[0].AirTemperature)
	assert.InDelta(t, 2.0, *forecast.Timeseries[0].AirTemperature, 0.0001)
	assert.Nil(t, forecast.Timeseries[0].PrecipitationAmount, "missing next_1_hours must not fail the parse")
}

func TestFetchForecast_CachesUntilExpiry(t *testing.T) {
	var hits int32
	srv := newTestServer(t, time.Now().Add(time.Hour).Format(http.TimeFormat), &hits)
	defer srv.Close()

	c := NewClient("geoloop-test/1.0", zerolog.Nop())
	c.httpClient = srv.Client()
	overrideURL(t, srv.URL)

	_, err := c.FetchForecast(context.Background(), 59.9, 10.7)
	require.NoError(t, err)
	_, err = c.FetchForecast(context.Background(), 59.9, 10.7)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second call within cache window must not re-fetch")
}

func TestFetchForecast_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("geoloop-test/1.0", zerolog.Nop())
	c.httpClient = srv.Client()
	overrideURL(t, srv.URL)

	_, err := c.FetchForecast(context.Background(), 59.9, 10.7)
	assert.Error(t, err)
}

// overrideURL points the package-level forecastURL at an httptest server for
// the duration of the test.
func overrideURL(t *testing.T, url string) {
	t.Helper()
	original := forecastURL
	forecastURL = url
	t.Cleanup(func() { forecastURL = original })
}
