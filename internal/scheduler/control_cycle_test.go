package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tommyskogstad/geoloop/internal/model"
	"github.com/tommyskogstad/geoloop/internal/relay"
)

func newTestControlCycleJob(t *testing.T, r relay.Relay) *ControlCycleJob {
	t.Helper()
	st := newTestSchedulerStore(t)
	return &ControlCycleJob{relay: r, store: st, log: zerolog.Nop()}
}

func TestActuate_TurnOnFromOffEmitsEvent(t *testing.T) {
	r := relay.NewStub()
	job := newTestControlCycleJob(t, r)

	require.NoError(t, job.actuate(context.Background(), model.DecisionTurnOn, false))
	require.True(t, r.IsOn())

	events, err := job.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventHeatingOn, events[0].EventType)
}

func TestActuate_TurnOffFromOnEmitsEvent(t *testing.T) {
	r := relay.NewStub()
	require.NoError(t, r.TurnOn(context.Background()))
	job := newTestControlCycleJob(t, r)

	require.NoError(t, job.actuate(context.Background(), model.DecisionTurnOff, true))
	require.False(t, r.IsOn())

	events, err := job.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventHeatingOff, events[0].EventType)
}

func TestActuate_KeepNeverChangesStateOrEmitsEvent(t *testing.T) {
	r := relay.NewStub()
	require.NoError(t, r.TurnOn(context.Background()))
	job := newTestControlCycleJob(t, r)

	require.NoError(t, job.actuate(context.Background(), model.DecisionKeep, true))
	require.True(t, r.IsOn())

	events, err := job.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestActuate_SameStateCommandsAreNoOps(t *testing.T) {
	r := relay.NewStub()
	require.NoError(t, r.TurnOn(context.Background()))
	job := newTestControlCycleJob(t, r)

	require.NoError(t, job.actuate(context.Background(), model.DecisionTurnOn, true))

	events, err := job.store.GetEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, events, "turning on an already-on relay must not emit an event")
}
