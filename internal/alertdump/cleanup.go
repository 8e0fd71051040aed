package alertdump

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

// cleanupHour is the local hour at which daily cleanup runs.
const cleanupHour = 3

// cleanupScheduler runs retention cleanup daily.
func (d *Dumper) cleanupScheduler() {
	defer d.wg.Done()

	for {
		// Calculate duration until the next cleanup hour
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}

		slog.Info("dump cleanup: next run scheduled", "at", next.Format(time.DateTime))

		select {
		case <-time.After(next.Sub(now)):
			d.runCleanup()
		case <-d.stopCh:
			slog.Info("dump cleanup scheduler stopped")
			return
		}
	}
}

// runCleanup removes dumps older than the retention period.
func (d *Dumper) runCleanup() {
	if d.cfg.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -d.cfg.RetentionDays)

	if d.cfg.StorageMode == types.StorageLocal || d.cfg.StorageMode == types.StorageBoth {
		d.cleanupLocalFiles(cutoff)
	}
	if d.needsS3() {
		d.cleanupS3Files(cutoff)
	}
}

// cleanupLocalFiles removes local dumps older than the cutoff.
func (d *Dumper) cleanupLocalFiles(cutoff time.Time) {
	entries, err := os.ReadDir(d.cfg.LocalPath)
	if err != nil {
		slog.Warn("dump cleanup: failed to read directory", "path", d.cfg.LocalPath, "error", err)
		return
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, "alert-") {
			continue
		}

		fileDate, ok := util.ExtractDateFromFilename(name)
		if !ok {
			continue
		}

		if fileDate.Before(cutoff) {
			path := filepath.Join(d.cfg.LocalPath, name)
			if err := os.Remove(path); err != nil {
				slog.Warn("dump cleanup: failed to delete file", "path", path, "error", err)
			} else {
				deleted++
			}
		}
	}

	if deleted > 0 {
		slog.Info("dump cleanup: deleted local files", "count", deleted)
	}
}

// cleanupS3Files removes S3 dump objects older than the cutoff.
func (d *Dumper) cleanupS3Files(cutoff time.Time) {
	client := newS3Client(&d.cfg)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	var deleted int
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(d.cfg.S3Bucket),
			Prefix: aws.String(s3Prefix),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			slog.Warn("dump cleanup: failed to list S3 objects", "bucket", d.cfg.S3Bucket, "error", err)
			return
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)

			fileDate, ok := util.ExtractDateFromFilename(filepath.Base(key))
			if !ok {
				continue
			}

			if fileDate.Before(cutoff) {
				_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(d.cfg.S3Bucket),
					Key:    obj.Key,
				})
				if err != nil {
					slog.Warn("dump cleanup: failed to delete S3 object", "key", key, "error", err)
				} else {
					deleted++
				}
			}
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	if deleted > 0 {
		slog.Info("dump cleanup: deleted S3 objects", "count", deleted)
	}
}
