// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort         = 8080
	DefaultRMSThreshold    = 400.0
	DefaultMonitorPeriodMs = 1000
	DefaultCycleBudgetMs   = 1
	DefaultAudioIntervalMs = 10
	DefaultBlockSize       = 64
	DefaultSmoothIntervals = 4
	DefaultZabbixPort      = 10051
)

// validate is the shared validator instance for configuration checks.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"` // HTTP server port
	APIKey string `json:"api_key" validate:"omitempty,max=128"`      // API key for control endpoints
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	Device          string `json:"device" validate:"omitempty,max=256"`            // Capture device identifier
	BlockSize       int    `json:"block_size" validate:"omitempty,gte=16,lte=4096"` // Samples per acquisition block
	SmoothIntervals int    `json:"smooth_intervals" validate:"omitempty,gte=0,lte=64"`
}

// DetectionConfig holds the noise alert threshold and cycle timing.
type DetectionConfig struct {
	RMSThreshold float64 `json:"rms_threshold" validate:"omitempty,gte=0,lte=32768"` // Linear RMS alert threshold
	PeriodMs     int64   `json:"period_ms" validate:"omitempty,gte=10,lte=60000"`    // Monitoring cycle period
	BudgetMs     int64   `json:"budget_ms" validate:"omitempty,gte=1,lte=1000"`      // Per-cycle execution budget
}

// StreamConfig holds audio forwarding settings.
type StreamConfig struct {
	IntervalMs int64 `json:"interval_ms" validate:"omitempty,gte=1,lte=1000"` // Connection interval
}

// IndicatorConfig holds alert indicator settings.
type IndicatorConfig struct {
	GPIOPath string `json:"gpio_path" validate:"omitempty,max=4096"` // sysfs GPIO value file (empty = log only)
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"` // Webhook URL for noise alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"` // Log file path for alert events
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,email,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// ZabbixNotifyConfig holds Zabbix trapper notification settings.
type ZabbixNotifyConfig struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig      `json:"webhook"`
	Log     LogConfig          `json:"log"`
	Email   EmailConfig        `json:"email"`
	Zabbix  ZabbixNotifyConfig `json:"zabbix"`
}

// DumpSettings holds alert audio dump settings.
type DumpSettings struct {
	Enabled           bool              `json:"enabled"`
	LocalPath         string            `json:"local_path" validate:"omitempty,max=4096"`
	StorageMode       types.StorageMode `json:"storage_mode" validate:"omitempty,oneof=local s3 both"`
	RetentionDays     int               `json:"retention_days" validate:"omitempty,gte=1,lte=365"`
	S3Endpoint        string            `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          string            `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     string            `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey string            `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	Detection     DetectionConfig     `json:"detection"`
	Stream        StreamConfig        `json:"stream"`
	Indicator     IndicatorConfig     `json:"indicator"`
	Notifications NotificationsConfig `json:"notifications"`
	Dump          DumpSettings        `json:"dump"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validateLocked(); err != nil {
		return err
	}

	return nil
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config field %s (%q fails %q)", e.Field(), fmt.Sprint(e.Value()), e.Tag())
		}
		return util.WrapError("validate config", err)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.Notifications.Zabbix.Server != "" && c.Notifications.Zabbix.Port == 0 {
		c.Notifications.Zabbix.Port = DefaultZabbixPort
	}
	if c.Dump.StorageMode == "" {
		c.Dump.StorageMode = types.StorageLocal
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// APIKey returns the API key for control endpoints.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// ZabbixConfig returns a copy of the current Zabbix configuration.
func (c *Config) ZabbixConfig() types.ZabbixConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.ZabbixConfig{
		Server: c.Notifications.Zabbix.Server,
		Port:   cmp.Or(c.Notifications.Zabbix.Port, DefaultZabbixPort),
		Host:   c.Notifications.Zabbix.Host,
		Key:    c.Notifications.Zabbix.Key,
	}
}

// DumpConfig returns a copy of the current alert dump configuration.
func (c *Config) DumpConfig() types.DumpConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.DumpConfig{
		Enabled:           c.Dump.Enabled,
		LocalPath:         c.Dump.LocalPath,
		StorageMode:       cmp.Or(c.Dump.StorageMode, types.StorageLocal),
		RetentionDays:     cmp.Or(c.Dump.RetentionDays, types.DefaultDumpRetentionDays),
		S3Endpoint:        c.Dump.S3Endpoint,
		S3Bucket:          c.Dump.S3Bucket,
		S3AccessKeyID:     c.Dump.S3AccessKeyID,
		S3SecretAccessKey: c.Dump.S3SecretAccessKey,
	}
}

// --- Setters for individual settings ---

// SetRMSThreshold updates the noise alert threshold and saves the configuration.
func (c *Config) SetRMSThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.RMSThreshold = threshold
	return c.saveLocked()
}

// SetMonitorPeriodMs updates the monitoring cycle period and saves the configuration.
func (c *Config) SetMonitorPeriodMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.PeriodMs = ms
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetZabbixConfig updates the Zabbix trapper settings and saves.
func (c *Config) SetZabbixConfig(server string, port int, host, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Zabbix.Server = server
	c.Notifications.Zabbix.Port = port
	c.Notifications.Zabbix.Host = host
	c.Notifications.Zabbix.Key = key
	return c.saveLocked()
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort int
	APIKey  string

	// Audio
	AudioDevice     string
	BlockSize       int
	SmoothIntervals int

	// Detection
	RMSThreshold    float64
	MonitorPeriodMs int64
	CycleBudgetMs   int64

	// Stream
	AudioIntervalMs int64

	// Indicator
	GPIOPath string

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
	ZabbixServer      string
	ZabbixPort        int
	ZabbixHost        string
	ZabbixKey         string

	// Dump
	Dump types.DumpConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort: cmp.Or(c.System.Port, DefaultWebPort),
		APIKey:  c.System.APIKey,

		// Audio
		AudioDevice:     c.Audio.Device,
		BlockSize:       cmp.Or(c.Audio.BlockSize, DefaultBlockSize),
		SmoothIntervals: cmp.Or(c.Audio.SmoothIntervals, DefaultSmoothIntervals),

		// Detection (with defaults)
		RMSThreshold:    cmp.Or(c.Detection.RMSThreshold, DefaultRMSThreshold),
		MonitorPeriodMs: cmp.Or(c.Detection.PeriodMs, DefaultMonitorPeriodMs),
		CycleBudgetMs:   cmp.Or(c.Detection.BudgetMs, DefaultCycleBudgetMs),

		// Stream
		AudioIntervalMs: cmp.Or(c.Stream.IntervalMs, DefaultAudioIntervalMs),

		// Indicator
		GPIOPath: c.Indicator.GPIOPath,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
		ZabbixServer:      c.Notifications.Zabbix.Server,
		ZabbixPort:        cmp.Or(c.Notifications.Zabbix.Port, DefaultZabbixPort),
		ZabbixHost:        c.Notifications.Zabbix.Host,
		ZabbixKey:         c.Notifications.Zabbix.Key,

		// Dump
		Dump: types.DumpConfig{
			Enabled:           c.Dump.Enabled,
			LocalPath:         c.Dump.LocalPath,
			StorageMode:       cmp.Or(c.Dump.StorageMode, types.StorageLocal),
			RetentionDays:     cmp.Or(c.Dump.RetentionDays, types.DefaultDumpRetentionDays),
			S3Endpoint:        c.Dump.S3Endpoint,
			S3Bucket:          c.Dump.S3Bucket,
			S3AccessKeyID:     c.Dump.S3AccessKeyID,
			S3SecretAccessKey: c.Dump.S3SecretAccessKey,
		},
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasZabbix reports whether Zabbix trapper notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return s.ZabbixServer != "" && s.ZabbixHost != "" && s.ZabbixKey != ""
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
