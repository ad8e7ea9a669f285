package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	decisionpkg "github.com/tommyskogstad/geoloop/internal/decision"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/relay"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/store"
	"github.com/tommyskogstad/geoloop/internal/weather"
)

// ControlCycleJob is the core decision loop: read sensors, fetch forecast,
// log weather, evaluate, actuate on a change, log the actuation event. The
// event is committed only after the actuator call returns, so a store
// failure after a successful toggle is still visible as an inconsistency
// rather than a silently lost state change.
type ControlCycleJob struct {
	sensors  *sensors.Set
	weather  *weather.Client
	relay    relay.Relay
	store    *store.Store
	lat, lon float64
	log      zerolog.Logger
}

func NewControlCycleJob(set *sensors.Set, wc *weather.Client, r relay.Relay, st *store.Store, lat, lon float64, log zerolog.Logger) *ControlCycleJob {
	return &ControlCycleJob{
		sensors: set, weather: wc, relay: r, store: st, lat: lat, lon: lon,
		log: log.With().Str("job", "control_cycle").Logger(),
	}
}

func (j *ControlCycleJob) Name() string { return "control_cycle" }

func (j *ControlCycleJob) Run(ctx context.Context) error {
	readings, err := j.sensors.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}

	forecast, err := j.weather.FetchForecast(ctx, j.lat, j.lon)
	if err != nil {
		// TransientUpstream: the cycle aborts here and the next cycle retries.
		return fmt.Errorf("fetch forecast: %w", err)
	}

	if err := j.store.LogWeather(ctx, forecast.Current, nil); err != nil {
		j.log.Error().Err(err).Msg("failed to log weather snapshot")
	}

	currentlyOn := j.relay.IsOn()
	result := decisionpkg.Evaluate(*forecast, &readings, currentlyOn)

	j.log.Info().
		Str("risk_level", string(result.RiskLevel)).
		Str("decision", string(result.Decision)).
		Str("reason", result.Reason).
		Bool("currently_on", currentlyOn).
		Msg("control cycle evaluated")

	return j.actuate(ctx, result.Decision, currentlyOn)
}

// actuate implements the heating state machine: only TURN_ON from OFF and
// TURN_OFF from ON change state and emit an event; KEEP and same-state
// commands are no-ops.
func (j *ControlCycleJob) actuate(ctx context.Context, intent model.HeatingDecision, currentlyOn bool) error {
	switch intent {
	case model.DecisionTurnOn:
		if currentlyOn {
			return nil
		}
		if err := j.relay.TurnOn(ctx); err != nil {
			return fmt.Errorf("turn on relay: %w", err)
		}
		return j.store.LogEvent(ctx, model.EventHeatingOn, "control cycle engaged heating", ptrNow())

	case model.DecisionTurnOff:
		if !currentlyOn {
			return nil
		}
		if err := j.relay.TurnOff(ctx); err != nil {
			return fmt.Errorf("turn off relay: %w", err)
		}
		return j.store.LogEvent(ctx, model.EventHeatingOff, "control cycle disengaged heating", ptrNow())

	default: // KEEP
		return nil
	}
}

func ptrNow() *time.Time {
	t := time.Now()
	return &t
}
