package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

// DumpInfo describes a captured alert audio dump.
type DumpInfo struct {
	Path      string
	Filename  string
	SizeBytes int64
	Err       error
}

// LogAlertRaised records a raised noise alert with optional dump info.
func LogAlertRaised(logPath string, rms, threshold float64, dump *DumpInfo) error {
	entry := &types.AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     "alert_raised",
		RMS:       rms,
		Threshold: threshold,
	}

	if dump != nil {
		if dump.Err != nil {
			entry.DumpError = dump.Err.Error()
		} else {
			entry.DumpPath = dump.Path
			entry.DumpFilename = dump.Filename
			entry.DumpSizeBytes = dump.SizeBytes
		}
	}

	return appendLogEntry(logPath, entry)
}

// LogAlertCleared records the end of a noise alert.
func LogAlertCleared(logPath string, loudDurationMs int64, rms, threshold float64) error {
	return appendLogEntry(logPath, &types.AlertLogEntry{
		Timestamp:  timestampUTC(),
		Event:      "alert_cleared",
		RMS:        rms,
		Threshold:  threshold,
		DurationMs: loudDurationMs,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.AlertLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
