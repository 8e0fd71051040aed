package alertdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/audexa/noisewatch/internal/notify"
	"github.com/audexa/noisewatch/internal/types"
)

// MaxUploadRetryAge is the maximum age for retrying uploads.
const MaxUploadRetryAge = 24 * time.Hour

// s3Prefix is the object key prefix for alert dumps.
const s3Prefix = "alert-dumps/"

// uploadTimeout bounds a single PutObject call.
const uploadTimeout = 5 * time.Minute

// uploadRequest represents a file to be uploaded to S3.
type uploadRequest struct {
	localPath string
	s3Key     string
	fileSize  int64
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	request      uploadRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// newS3Client creates an S3 client for the given dump configuration.
func newS3Client(cfg *types.DumpConfig) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.S3AccessKeyID,
		cfg.S3SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.S3Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// TestS3Connection verifies S3 access by uploading and deleting a test object.
func TestS3Connection(cfg *types.DumpConfig) error {
	if cfg.S3Bucket == "" || cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
		return fmt.Errorf("S3 is not configured")
	}

	client := newS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("noisewatch connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.S3Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}

// queueForUpload hands a dump file to the upload worker.
func (d *Dumper) queueForUpload(localPath string, size int64) {
	select {
	case d.uploadQueue <- uploadRequest{
		localPath: localPath,
		s3Key:     s3Prefix + filepath.Base(localPath),
		fileSize:  size,
	}:
		slog.Info("queued dump for upload", "file", filepath.Base(localPath))
	default:
		slog.Warn("dump upload queue full", "file", filepath.Base(localPath))
	}
}

// uploadWorker processes the upload queue, retrying failed uploads
// hourly and draining remaining items on shutdown.
func (d *Dumper) uploadWorker() {
	defer d.wg.Done()

	client := newS3Client(&d.cfg)
	retryTicker := time.NewTicker(retryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-d.stopCh:
			// Drain remaining items before exiting
			for {
				select {
				case req := <-d.uploadQueue:
					d.uploadFile(client, req)
				default:
					return
				}
			}
		case req := <-d.uploadQueue:
			d.uploadFile(client, req)
		case <-retryTicker.C:
			d.processRetryQueue(client)
		}
	}
}

// uploadFile uploads a dump to S3 and deletes the local file in S3-only mode.
func (d *Dumper) uploadFile(client *s3.Client, req uploadRequest) {
	if err := d.putObject(client, req); err != nil {
		slog.Error("dump upload failed", "s3_key", req.s3Key, "error", err)
		d.addToRetryQueue(req, err.Error())
		return
	}

	slog.Info("dump upload completed", "s3_key", req.s3Key)
	d.removeLocalIfS3Only(req.localPath)
}

// putObject performs a single upload attempt.
func (d *Dumper) putObject(client *s3.Client, req uploadRequest) error {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close dump after upload", "error", err)
		}
	}()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.cfg.S3Bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String("audio/wav"),
	})
	return err
}

// removeLocalIfS3Only deletes the local copy when storage is S3-only.
func (d *Dumper) removeLocalIfS3Only(localPath string) {
	if d.cfg.StorageMode != types.StorageS3 {
		return
	}
	if err := os.Remove(localPath); err != nil {
		slog.Warn("failed to delete local dump after upload", "path", localPath, "error", err)
	}
}

// addToRetryQueue adds a failed upload to the retry queue.
func (d *Dumper) addToRetryQueue(req uploadRequest, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Prevent duplicates
	for _, p := range d.retryQueue {
		if p.request.localPath == req.localPath {
			return
		}
	}

	d.retryQueue = append(d.retryQueue, pendingUpload{
		request:      req,
		firstAttempt: time.Now(),
		lastError:    errMsg,
	})

	slog.Info("dump upload queued for retry", "file", filepath.Base(req.localPath))
}

// processRetryQueue attempts to upload all pending files, abandoning
// those older than MaxUploadRetryAge.
func (d *Dumper) processRetryQueue(client *s3.Client) {
	d.mu.Lock()
	if len(d.retryQueue) == 0 {
		d.mu.Unlock()
		return
	}
	pending := d.retryQueue
	d.retryQueue = nil
	d.mu.Unlock()

	now := time.Now()

	for i := range pending {
		p := &pending[i]

		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("dump upload abandoned after 24h",
				"file", filepath.Base(p.request.localPath),
				"attempts", p.retryCount+1)
			if d.abandoned != nil {
				d.abandoned(notify.UploadAbandonedParams{
					Filename:   filepath.Base(p.request.localPath),
					S3Key:      p.request.s3Key,
					RetryCount: p.retryCount,
					LastError:  p.lastError,
				})
			}
			continue
		}

		p.retryCount++
		slog.Info("retrying dump upload",
			"file", filepath.Base(p.request.localPath),
			"attempt", p.retryCount)

		if !d.retryUpload(client, p) {
			d.mu.Lock()
			d.retryQueue = append(d.retryQueue, *p)
			d.mu.Unlock()
		}
	}
}

// retryUpload performs the upload and returns true on success.
func (d *Dumper) retryUpload(client *s3.Client, p *pendingUpload) bool {
	if _, err := os.Stat(p.request.localPath); os.IsNotExist(err) {
		slog.Warn("retry file no longer exists", "path", p.request.localPath)
		return true // Nothing to upload
	}

	if err := d.putObject(client, p.request); err != nil {
		p.lastError = err.Error()
		slog.Error("retry dump upload failed", "s3_key", p.request.s3Key, "error", err)
		return false
	}

	slog.Info("retry dump upload completed", "s3_key", p.request.s3Key)
	d.removeLocalIfS3Only(p.request.localPath)
	return true
}
