package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/tommyskogstad/geoloop/internal/store"
)

// ResourceSamplerJob logs disk and memory pressure, plus the embedded
// database's own integrity and size, on the same cadence as compaction, so a
// slow compaction run in the logs can be correlated against disk exhaustion
// or a failing database file without needing a separate metrics stack. It
// never influences control decisions.
type ResourceSamplerJob struct {
	dataDir string
	store   *store.Store
	log     zerolog.Logger
}

func NewResourceSamplerJob(dataDir string, st *store.Store, log zerolog.Logger) *ResourceSamplerJob {
	return &ResourceSamplerJob{dataDir: dataDir, store: st, log: log.With().Str("job", "resource_sampler").Logger()}
}

func (j *ResourceSamplerJob) Name() string { return "resource_sampler" }

func (j *ResourceSamplerJob) Run(ctx context.Context) error {
	diskUsage, err := disk.UsageWithContext(ctx, j.dataDir)
	if err != nil {
		return fmt.Errorf("read disk usage for %s: %w", j.dataDir, err)
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("read virtual memory stats: %w", err)
	}

	if err := j.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	dbStats, err := j.store.Stats()
	if err != nil {
		return fmt.Errorf("read database stats: %w", err)
	}

	j.log.Info().
		Float64("disk_used_percent", diskUsage.UsedPercent).
		Uint64("disk_free_bytes", diskUsage.Free).
		Float64("mem_used_percent", vmem.UsedPercent).
		Uint64("mem_available_bytes", vmem.Available).
		Int64("db_size_bytes", dbStats.SizeBytes).
		Int64("db_wal_size_bytes", dbStats.WALSizeBytes).
		Int64("db_freelist_count", dbStats.FreelistCount).
		Msg("resource sample")

	return nil
}
