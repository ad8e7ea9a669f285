package scheduler

import (
	"context"

	"github.com/tommyskogstad/geoloop/internal/backup"
)

// BackupJob uploads a database snapshot once a day. Only registered when
// backup configuration is present.
type BackupJob struct {
	uploader *backup.Uploader
	dbPath   string
}

func NewBackupJob(uploader *backup.Uploader, dbPath string) *BackupJob {
	return &BackupJob{uploader: uploader, dbPath: dbPath}
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run(ctx context.Context) error {
	return j.uploader.UploadSnapshot(ctx, j.dbPath)
}
