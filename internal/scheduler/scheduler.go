// Package scheduler drives the periodic jobs that make up the control
// pipeline (sensor poll, control cycle, compaction, resource sampling, plus
// the optional backup), on top of robfig/cron. Each job run gets a
// correlation id so its log lines can be grepped together, and every job is
// wrapped so a panic or error becomes an `error` system event instead of
// taking the process down.
package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/store"
)

// Job is one periodic unit of work. Run should not panic, but the scheduler
// recovers regardless.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler owns a cron instance and the store used for error-event
// logging.
type Scheduler struct {
	cron  *cron.Cron
	store *store.Store
	log   zerolog.Logger
}

// New builds a scheduler. It does not start running jobs until Start is
// called.
func New(st *store.Store, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		store: st,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Register schedules job on the given cron spec (e.g. "@every 1m"). It does
// not run until Start.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runGuarded(context.Background(), job)
	})
	return err
}

// RunNow executes job immediately and synchronously, guarded the same way as
// a scheduled run. Used at startup to invoke the sensor-poll and
// control-cycle jobs once before the cron loop takes over periodicity.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.runGuarded(ctx, job)
}

// runGuarded is the catch-all every job runs under: a panic or error never
// escapes to the cron runner, and both are recorded as an `error` system
// event so the scheduler can keep going.
func (s *Scheduler) runGuarded(ctx context.Context, job Job) {
	runID := uuid.NewString()
	jobLog := s.log.With().Str("job", job.Name()).Str("run_id", runID).Logger()

	defer func() {
		if p := recover(); p != nil {
			jobLog.Error().Interface("panic", p).Msg("job panicked")
			s.logJobError(ctx, job.Name(), runID, "panic: "+toMessage(p))
		}
	}()

	jobLog.Debug().Msg("job starting")
	if err := job.Run(ctx); err != nil {
		jobLog.Error().Err(err).Msg("job failed")
		s.logJobError(ctx, job.Name(), runID, err.Error())
		return
	}
	jobLog.Debug().Msg("job completed")
}

func (s *Scheduler) logJobError(ctx context.Context, jobName, runID, detail string) {
	if s.store == nil {
		return
	}
	msg := jobName + " [" + runID + "]: " + detail
	if err := s.store.LogEvent(ctx, model.EventError, msg, nil); err != nil {
		s.log.Error().Err(err).Msg("failed to log job error event")
	}
}

func toMessage(p interface{}) string {
	if err, ok := p.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", p)
}

// Start begins the cron loop. Non-blocking; jobs run on cron's own
// goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop asks cron to stop scheduling new runs and waits for in-flight jobs to
// finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
