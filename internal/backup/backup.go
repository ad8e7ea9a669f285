// Package backup implements an optional, best-effort off-site snapshot
// upload of the database file to an S3-compatible bucket (Cloudflare R2 or
// AWS S3). This is not high-availability replication: there is no restore
// path and no read access, only a periodic write so an operator can pull a
// copy of the data off the device.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	geoloopconfig "github.com/tommyskogstad/geoloop/internal/config"
)

// Uploader snapshots a SQLite database file and uploads it to a configured
// bucket. It never reads the bucket back; restore is an operator action
// outside this system.
type Uploader struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// New builds an uploader from BackupConfig. Returns nil, nil when the
// config is unconfigured (Bucket empty) — callers should skip registering
// the backup job entirely in that case.
func New(ctx context.Context, cfg geoloopconfig.BackupConfig, log zerolog.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{URL: cfg.Endpoint}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config for backup uploader: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &Uploader{
		client:   client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) { u.PartSize = 8 * 1024 * 1024 }),
		bucket:   cfg.Bucket,
		log:      log.With().Str("component", "backup").Logger(),
	}, nil
}

// UploadSnapshot reads dbPath from disk and uploads it under a timestamped
// key, so repeated runs don't overwrite the previous snapshot.
func (u *Uploader) UploadSnapshot(ctx context.Context, dbPath string) error {
	f, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database file for backup: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("snapshots/%s-%s", time.Now().UTC().Format("20060102T150405Z"), filepath.Base(dbPath))

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = u.uploader.Upload(uploadCtx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload database snapshot: %w", err)
	}

	u.log.Info().Str("key", key).Msg("uploaded database snapshot")
	return nil
}
