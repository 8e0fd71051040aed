// Package alertdump captures a pre-roll audio dump when a noise alert
// is raised: the most recent samples are written out as a WAV file,
// optionally uploaded to S3-compatible storage, and cleaned up after
// the retention period.
package alertdump

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/audexa/noisewatch/internal/notify"
	"github.com/audexa/noisewatch/internal/source"
	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

const (
	// uploadQueueSize bounds the number of dumps waiting for upload.
	uploadQueueSize = 16

	// retryInterval is how often the upload retry queue is processed.
	retryInterval = time.Hour
)

// dumpTimeFormat names dump files so retention cleanup can extract the date.
const dumpTimeFormat = "2006-01-02-15-04-05"

// AbandonedFunc is called when a dump upload exhausts all retries.
type AbandonedFunc func(p notify.UploadAbandonedParams)

// Dumper writes alert pre-roll dumps and manages their lifecycle.
type Dumper struct {
	cfg        types.DumpConfig
	ring       *source.Ring
	sampleRate int
	abandoned  AbandonedFunc

	uploadQueue chan uploadRequest
	stopCh      chan struct{}
	wg          sync.WaitGroup

	mu         sync.Mutex
	retryQueue []pendingUpload
	started    bool
}

// NewDumper creates a dumper reading pre-roll audio from ring.
func NewDumper(cfg types.DumpConfig, ring *source.Ring, sampleRate int, abandoned AbandonedFunc) (*Dumper, error) {
	if ring == nil {
		return nil, fmt.Errorf("pre-roll ring is required")
	}
	if cfg.Enabled {
		if err := util.ValidatePath("dump local_path", cfg.LocalPath); err != nil {
			return nil, err
		}
		if err := util.CheckPathWritable(cfg.LocalPath); err != nil {
			return nil, util.WrapError("check dump path", err)
		}
	}
	return &Dumper{
		cfg:         cfg,
		ring:        ring,
		sampleRate:  sampleRate,
		abandoned:   abandoned,
		uploadQueue: make(chan uploadRequest, uploadQueueSize),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start launches the upload worker and cleanup scheduler.
func (d *Dumper) Start() {
	d.mu.Lock()
	if d.started || !d.cfg.Enabled {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	if d.needsS3() {
		d.wg.Add(1)
		go d.uploadWorker()
	}
	if d.cfg.RetentionDays > 0 {
		d.wg.Add(1)
		go d.cleanupScheduler()
	}
}

// Stop shuts the background workers down, draining pending uploads.
func (d *Dumper) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// Enabled reports whether dump capture is active.
func (d *Dumper) Enabled() bool {
	return d.cfg.Enabled
}

// needsS3 reports whether the storage mode requires uploads.
func (d *Dumper) needsS3() bool {
	return d.cfg.StorageMode == types.StorageS3 || d.cfg.StorageMode == types.StorageBoth
}

// Capture writes the current pre-roll window to a WAV file and queues
// it for upload when the storage mode requires S3. The returned info is
// suitable for attaching to alert notifications; a capture failure is
// reported in the Err field, never as a hard error to the caller.
func (d *Dumper) Capture() *notify.DumpInfo {
	if !d.cfg.Enabled {
		return nil
	}

	samples := d.ring.Snapshot()
	if len(samples) == 0 {
		return &notify.DumpInfo{Err: fmt.Errorf("no pre-roll audio buffered")}
	}

	filename := fmt.Sprintf("alert-%s.wav", time.Now().Format(dumpTimeFormat))
	path := filepath.Join(d.cfg.LocalPath, filename)

	size, err := writeWAV(path, samples, d.sampleRate)
	if err != nil {
		slog.Error("alert dump write failed", "path", path, "error", err)
		return &notify.DumpInfo{Err: util.WrapError("write alert dump", err)}
	}

	slog.Info("alert dump captured",
		"file", filename,
		"samples", len(samples),
		"bytes", size)

	if d.needsS3() {
		d.queueForUpload(path, size)
	}

	return &notify.DumpInfo{
		Path:      path,
		Filename:  filename,
		SizeBytes: size,
	}
}
