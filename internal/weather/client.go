// Package weather implements the met.no forecast client: a single-entry
// cache keyed by the provider's Expires header, fronting a fixed HTTPS
// locationforecast endpoint.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/model"
)

// forecastURL is a var rather than a const so tests can point the client at
// an httptest server.
var forecastURL = "https://api.met.no/weatherapi/locationforecast/2.0/compact"

// Client fetches and caches the forecast for one fixed geographic point.
type Client struct {
	httpClient *http.Client
	userAgent  string
	log        zerolog.Logger

	mu       sync.Mutex
	cached   *model.WeatherForecast
	expires  time.Time
}

// NewClient constructs a forecast client. userAgent is mandatory per the
// upstream API's usage policy.
func NewClient(userAgent string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		log:        log.With().Str("component", "weather").Logger(),
	}
}

// FetchForecast returns the cached forecast if it hasn't expired, otherwise
// fetches a fresh one from met.no and updates the cache from the response's
// Expires header. A missing Expires header leaves the previous expiry (or
// zero value) untouched, which effectively disables caching until a
// response provides one.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) (*model.WeatherForecast, error) {
	c.mu.Lock()
	if c.cached != nil && time.Now().Before(c.expires) {
		cached := *c.cached
		c.mu.Unlock()
		return &cached, nil
	}
	c.mu.Unlock()

	forecast, expires, err := c.fetch(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	c.mu.Lock()
	c.cached = forecast
	if !expires.IsZero() {
		c.expires = expires
	}
	result := *c.cached
	c.mu.Unlock()

	return &result, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*model.WeatherForecast, time.Time, error) {
	u, err := url.Parse(forecastURL)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse forecast url: %w", err)
	}

	q := u.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, time.Time{}, fmt.Errorf("forecast request returned status %d", resp.StatusCode)
	}

	var expires time.Time
	if raw := resp.Header.Get("Expires"); raw != "" {
		if parsed, err := http.ParseTime(raw); err == nil {
			expires = parsed
		} else {
			c.log.Warn().Err(err).Str("expires_header", raw).Msg("failed to parse Expires header")
		}
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode forecast response: %w", err)
	}

	forecast, err := payload.toModel()
	if err != nil {
		return nil, time.Time{}, err
	}

	return forecast, expires, nil
}

// forecastResponse mirrors the subset of met.no's locationforecast/2.0/compact
// JSON shape the controller consumes. Fields the upstream provider omits
// decode to their Go zero value and are treated as absent by toModel.
type forecastResponse struct {
	Properties struct {
		Timeseries []timeseriesEntry `json:"timeseries"`
	} `json:"properties"`
}

type timeseriesEntry struct {
	Time string `json:"time"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature   *float64 `json:"air_temperature"`
				RelativeHumidity *float64 `json:"relative_humidity"`
				WindSpeed        *float64 `json:"wind_speed"`
			} `json:"details"`
		} `json:"instant"`
		Next1Hours struct {
			Details struct {
				PrecipitationAmount *float64 `json:"precipitation_amount"`
			} `json:"details"`
		} `json:"next_1_hours"`
	} `json:"data"`
}

func (e timeseriesEntry) toSnapshot() (model.WeatherSnapshot, error) {
	t, err := time.Parse(time.RFC3339, e.Time)
	if err != nil {
		return model.WeatherSnapshot{}, fmt.Errorf("parse timeseries entry time %q: %w", e.Time, err)
	}

	return model.WeatherSnapshot{
		Time:                t,
		AirTemperature:      e.Data.Instant.Details.AirTemperature,
		RelativeHumidity:    e.Data.Instant.Details.RelativeHumidity,
		WindSpeed:           e.Data.Instant.Details.WindSpeed,
		PrecipitationAmount: e.Data.Next1Hours.Details.PrecipitationAmount,
	}, nil
}

// toModel converts the parsed JSON into a WeatherForecast: the first entry
// becomes current, the remainder the timeseries, preserving the provider's
// ascending-by-time ordering.
func (r forecastResponse) toModel() (*model.WeatherForecast, error) {
	if len(r.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("forecast response contained no timeseries entries")
	}

	snapshots := make([]model.WeatherSnapshot, 0, len(r.Properties.Timeseries))
	for _, entry := range r.Properties.Timeseries {
		snap, err := entry.toSnapshot()
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return &model.WeatherForecast{
		Current:    snapshots[0],
		Timeseries: snapshots[1:],
	}, nil
}
