package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"context"

	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/relay"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/store"
)

// forecaster is the narrow slice of weather.Client the HTTP surface needs,
// so handler tests can substitute a fake instead of hitting the network.
type forecaster interface {
	FetchForecast(ctx context.Context, lat, lon float64) (*model.WeatherForecast, error)
}

// appContext is the explicit, per-server collaborator bundle every handler
// closes over. Nothing here is a package-level global: a second Server in
// the same process (as in tests) gets its own appContext.
type appContext struct {
	store   *store.Store
	sensors *sensors.Set
	weather forecaster
	relay   relay.Relay
	lat     float64
	lon     float64
	log     zerolog.Logger
}

const defaultLogLimit = 50
const defaultHistoryHours = 24
const defaultHistoryLimit = 200

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError reports a soft failure the spec requires to surface as 200 with
// an error body, so the dashboard can render "unknown" instead of breaking.
func writeError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]string{"error": message})
}

func sensorsToMap(r model.SensorReadings) map[string]*float64 {
	out := make(map[string]*float64, len(model.SensorNames))
	for _, name := range model.SensorNames {
		out[name] = r.Get(name)
	}
	return out
}

func weatherSnapshotJSON(s model.WeatherSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"time":                 s.Time,
		"air_temperature":      s.AirTemperature,
		"precipitation_amount": s.PrecipitationAmount,
		"relative_humidity":    s.RelativeHumidity,
		"wind_speed":           s.WindSpeed,
	}
}

// handleStatus serves GET /api/status: a best-effort snapshot combining the
// live forecast, the relay's commanded state, and a live sensor poll. Any
// unconfigured dependency contributes null rather than failing the request.
func (a *appContext) handleStatus(w http.ResponseWriter, r *http.Request) {
	var weatherOut interface{}
	if a.weather != nil {
		forecast, err := a.weather.FetchForecast(r.Context(), a.lat, a.lon)
		if err != nil {
			a.log.Warn().Err(err).Msg("status: forecast fetch failed")
		} else {
			weatherOut = weatherSnapshotJSON(forecast.Current)
		}
	}

	var heatingOut interface{}
	if a.relay != nil {
		heatingOut = map[string]bool{"on": a.relay.IsOn()}
	}

	readings, err := a.sensors.ReadAll(r.Context())
	if err != nil {
		a.log.Warn().Err(err).Msg("status: sensor read failed")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"weather": weatherOut,
		"heating": heatingOut,
		"sensors": sensorsToMap(readings),
	})
}

// handleWeather serves GET /api/weather: the cached-or-fresh forecast, capped
// to the first 24 timeseries entries (the window the decision engine itself
// considers).
func (a *appContext) handleWeather(w http.ResponseWriter, r *http.Request) {
	if a.weather == nil {
		writeError(w, "weather client not configured")
		return
	}

	forecast, err := a.weather.FetchForecast(r.Context(), a.lat, a.lon)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	timeseries := forecast.Timeseries
	if len(timeseries) > 24 {
		timeseries = timeseries[:24]
	}
	forecastOut := make([]map[string]interface{}, 0, len(timeseries))
	for _, snap := range timeseries {
		forecastOut = append(forecastOut, weatherSnapshotJSON(snap))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current":  weatherSnapshotJSON(forecast.Current),
		"forecast": forecastOut,
	})
}

// handleSensors serves GET /api/sensors: a live poll of every registered
// sensor.
func (a *appContext) handleSensors(w http.ResponseWriter, r *http.Request) {
	readings, err := a.sensors.ReadAll(r.Context())
	if err != nil {
		writeError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sensors": sensorsToMap(readings)})
}

// handleLog serves GET /api/log?limit=N: the newest weather, sensor, and
// event rows, newest-first.
func (a *appContext) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", defaultLogLimit)

	weatherLog, err := a.store.GetWeatherLog(r.Context(), limit)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	sensorLog, err := a.store.GetSensorLog(r.Context(), "", limit)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	events, err := a.store.GetEvents(r.Context(), limit)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"weather": weatherLog,
		"sensors": sensorLog,
		"events":  events,
	})
}

// handleHistory serves GET /api/history?hours=H: pivoted sensor history over
// the window, the heating periods within it, and the relay's current state.
func (a *appContext) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := intQueryParam(r, "hours", defaultHistoryHours)

	sensorHistory, err := a.store.GetSensorHistory(r.Context(), hours, defaultHistoryLimit)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	heatingPeriods, err := a.store.GetHeatingPeriods(r.Context(), hours)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	var heatingOn bool
	if a.relay != nil {
		heatingOn = a.relay.IsOn()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensors":         sensorHistory,
		"heating_periods": heatingPeriods,
		"heating_on":      heatingOn,
	})
}

// handleHeatingOn serves POST /api/heating/on: manual override, logged as
// manual_on. The next control cycle may immediately revert this.
func (a *appContext) handleHeatingOn(w http.ResponseWriter, r *http.Request) {
	a.manualOverride(w, r, true)
}

// handleHeatingOff serves POST /api/heating/off: manual override, logged as
// manual_off.
func (a *appContext) handleHeatingOff(w http.ResponseWriter, r *http.Request) {
	a.manualOverride(w, r, false)
}

func (a *appContext) manualOverride(w http.ResponseWriter, r *http.Request, on bool) {
	if a.relay == nil {
		writeError(w, "heating controller not configured")
		return
	}

	var err error
	eventType := model.EventManualOff
	msg := "manual override: heating off"
	if on {
		err = a.relay.TurnOn(r.Context())
		eventType = model.EventManualOn
		msg = "manual override: heating on"
	} else {
		err = a.relay.TurnOff(r.Context())
	}
	if err != nil {
		writeError(w, err.Error())
		return
	}

	if logErr := a.store.LogEvent(r.Context(), eventType, msg, nil); logErr != nil {
		a.log.Error().Err(logErr).Msg("failed to log manual override event")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"heating": map[string]bool{"on": on}})
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
