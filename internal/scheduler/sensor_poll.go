package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/store"
)

// SensorPollJob reads every registered sensor once and writes each present
// value with one shared cycle timestamp, so the cycle's readings line up as
// columns in get_sensor_history.
type SensorPollJob struct {
	sensors *sensors.Set
	store   *store.Store
	log     zerolog.Logger
}

func NewSensorPollJob(set *sensors.Set, st *store.Store, log zerolog.Logger) *SensorPollJob {
	return &SensorPollJob{sensors: set, store: st, log: log.With().Str("job", "sensor_poll").Logger()}
}

func (j *SensorPollJob) Name() string { return "sensor_poll" }

func (j *SensorPollJob) Run(ctx context.Context) error {
	cycleTime := time.Now().UTC()

	readings, err := j.sensors.ReadAll(ctx)
	if err != nil {
		return err
	}

	for _, name := range model.SensorNames {
		v := readings.Get(name)
		if v == nil {
			continue
		}
		if err := j.store.LogSensor(ctx, name, *v, &cycleTime); err != nil {
			j.log.Error().Err(err).Str("sensor", name).Msg("failed to log sensor reading")
		}
	}

	return nil
}
