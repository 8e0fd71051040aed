// Package types provides shared type definitions used across the monitor.
package types

import (
	"time"
)

// EngineState represents the current state of the monitoring engine.
type EngineState string

const (
	// StateStopped indicates the engine is not running.
	StateStopped EngineState = "stopped"
	// StateStarting indicates the engine is initializing.
	StateStarting EngineState = "starting"
	// StateRunning indicates the engine is actively monitoring.
	StateRunning EngineState = "running"
	// StateStopping indicates the engine is shutting down.
	StateStopping EngineState = "stopping"
)

const (
	// InitialRetryDelay is the starting delay between retry attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between retry attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// Audio format constants for PCM capture.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 16000
	// Channels is the number of audio channels (mono capture).
	Channels = 1
)

// EngineStatus contains a summary of the engine's current operational state.
type EngineStatus struct {
	State      EngineState `json:"state"`               // Current engine state
	Uptime     string      `json:"uptime,omitzero"`     // Time since start
	LastError  string      `json:"last_error,omitzero"` // Most recent error
	AlertState string      `json:"alert_state"`         // quiet or loud
}

// AudioLevels contains current audio level measurements.
type AudioLevels struct {
	RMS        float64 `json:"rms"`                 // Smoothed linear RMS level
	RMSDB      float64 `json:"rms_db"`              // RMS level in dBFS
	Peak       float64 `json:"peak"`                // Peak sample since last report
	PeakDB     float64 `json:"peak_db"`             // Peak level in dBFS
	Loud       bool    `json:"loud,omitzero"`       // True while the alert is raised
	Threshold  float64 `json:"threshold"`           // Configured RMS threshold
	Dropouts   uint64  `json:"dropouts,omitzero"`   // Audio intervals with no frame
	Overwrites uint64  `json:"overwrites,omitzero"` // Sample blocks lost to overwrites
}

// WSStatusResponse is sent to clients with full engine status.
type WSStatusResponse struct {
	Type           string       `json:"type"`                // Message type identifier
	Engine         EngineStatus `json:"engine"`              // Engine status
	RMSThreshold   float64      `json:"rms_threshold"`       // Alert threshold (linear RMS)
	MonitorPeriod  int64        `json:"monitor_period_ms"`   // Monitoring cycle period
	AudioInterval  int64        `json:"audio_interval_ms"`   // Connection interval
	Cycles         uint64       `json:"cycles"`              // Completed monitoring cycles
	CyclesSkipped  uint64       `json:"cycles_skipped"`      // Cycles skipped on underrun
	FramesForward  uint64       `json:"frames_forwarded"`    // Audio frames forwarded
	Dropouts       uint64       `json:"dropouts"`            // Audio dropout intervals
	AlertWebhook   string       `json:"alert_webhook"`       // Webhook URL for alerts
	AlertLogPath   string       `json:"alert_log_path"`      // Alert log file path
	Zabbix         ZabbixConfig `json:"zabbix,omitzero"`     // Zabbix trapper settings
	GraphFrom      string       `json:"graph_from"`          // Notification sender address
	GraphTo        string       `json:"graph_recipients"`    // Notification recipients
	AlertDump      DumpConfig   `json:"alert_dump"`          // Alert dump configuration
	Version        VersionInfo  `json:"version"`             // Version information
	IndicatorState bool         `json:"indicator,omitzero"`  // Alert indicator state
}

// WSLevelsResponse is sent to clients with audio level updates.
type WSLevelsResponse struct {
	Type   string      `json:"type"`   // Message type identifier
	Levels AudioLevels `json:"levels"` // Current audio levels
}

// WSTestResult is sent to clients after a test operation completes.
type WSTestResult struct {
	Type     string `json:"type"`            // Message type identifier
	TestType string `json:"test_type"`       // Type of test performed
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Error message if failed
}

// AlertLogEntry represents a single entry in the alert event log.
type AlertLogEntry struct {
	Timestamp  string  `json:"timestamp"`             // RFC3339 timestamp
	Event      string  `json:"event"`                 // Event type (alert_raised, alert_cleared, ...)
	RMS        float64 `json:"rms,omitempty"`         // RMS reading that caused the event
	Threshold  float64 `json:"threshold,omitempty"`   // Configured threshold
	DurationMs int64   `json:"duration_ms,omitempty"` // Loud duration (alert_cleared only)

	// Audio dump fields (alert_raised only)
	DumpPath      string `json:"dump_path,omitempty"`       // Full path to the WAV dump file
	DumpFilename  string `json:"dump_filename,omitempty"`   // Dump filename
	DumpSizeBytes int64  `json:"dump_size_bytes,omitempty"` // Dump file size in bytes
	DumpError     string `json:"dump_error,omitempty"`      // Error message if the dump failed
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server    string `json:"server,omitempty"`
	Port      int    `json:"port,omitempty"`
	Host      string `json:"host,omitempty"`
	Key       string `json:"key,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// StorageMode determines where alert dumps are saved.
type StorageMode string

// Supported storage modes.
const (
	StorageLocal StorageMode = "local" // Save only to local filesystem
	StorageS3    StorageMode = "s3"    // Upload only to S3
	StorageBoth  StorageMode = "both"  // Save locally AND upload to S3
)

// DefaultDumpRetentionDays is the default number of days to keep alert dumps.
const DefaultDumpRetentionDays = 7

// DumpConfig contains configuration for alert audio dump capture.
type DumpConfig struct {
	Enabled       bool        `json:"enabled"`        // Whether dump capture is active
	LocalPath     string      `json:"local_path"`     // Local directory for dumps
	StorageMode   StorageMode `json:"storage_mode"`   // local, s3, or both
	RetentionDays int         `json:"retention_days"` // Days to keep dump files (default 7)

	// S3 configuration (required for s3/both modes)
	S3Endpoint        string `json:"s3_endpoint,omitempty"`
	S3Bucket          string `json:"s3_bucket,omitempty"`
	S3AccessKeyID     string `json:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `json:"s3_secret_access_key,omitempty"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
