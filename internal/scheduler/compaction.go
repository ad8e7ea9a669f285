package scheduler

import (
	"context"

	"github.com/tommyskogstad/geoloop/internal/store"
)

// CompactionJob runs the rolling sensor_log compaction pass hourly.
type CompactionJob struct {
	store *store.Store
}

func NewCompactionJob(st *store.Store) *CompactionJob {
	return &CompactionJob{store: st}
}

func (j *CompactionJob) Name() string { return "compaction" }

func (j *CompactionJob) Run(ctx context.Context) error {
	if err := j.store.CompactSensorData(ctx); err != nil {
		return err
	}
	// Compaction deletes the raw rows it rolled up; checkpoint so the WAL
	// file doesn't carry that churn around indefinitely.
	return j.store.CheckpointWAL()
}
