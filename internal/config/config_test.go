package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audexa/noisewatch/internal/types"
)

func tempConfig(t *testing.T, contents string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	return New(path)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	cfg := tempConfig(t, "")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := os.Stat(cfg.filePath); err != nil {
		t.Errorf("default config file not created: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != DefaultWebPort {
		t.Errorf("WebPort = %d, want %d", snap.WebPort, DefaultWebPort)
	}
	if snap.RMSThreshold != DefaultRMSThreshold {
		t.Errorf("RMSThreshold = %v, want %v", snap.RMSThreshold, DefaultRMSThreshold)
	}
	if snap.MonitorPeriodMs != DefaultMonitorPeriodMs {
		t.Errorf("MonitorPeriodMs = %d, want %d", snap.MonitorPeriodMs, DefaultMonitorPeriodMs)
	}
	if snap.AudioIntervalMs != DefaultAudioIntervalMs {
		t.Errorf("AudioIntervalMs = %d, want %d", snap.AudioIntervalMs, DefaultAudioIntervalMs)
	}
	if snap.BlockSize != DefaultBlockSize {
		t.Errorf("BlockSize = %d, want %d", snap.BlockSize, DefaultBlockSize)
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	cfg := tempConfig(t, `{
		"system": {"port": 9090, "api_key": "secret"},
		"detection": {"rms_threshold": 512, "period_ms": 500},
		"stream": {"interval_ms": 20},
		"notifications": {"webhook": {"url": "https://example.com/hook"}}
	}`)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != 9090 {
		t.Errorf("WebPort = %d, want 9090", snap.WebPort)
	}
	if snap.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", snap.APIKey, "secret")
	}
	if snap.RMSThreshold != 512 {
		t.Errorf("RMSThreshold = %v, want 512", snap.RMSThreshold)
	}
	if snap.MonitorPeriodMs != 500 {
		t.Errorf("MonitorPeriodMs = %d, want 500", snap.MonitorPeriodMs)
	}
	if snap.AudioIntervalMs != 20 {
		t.Errorf("AudioIntervalMs = %d, want 20", snap.AudioIntervalMs)
	}
	if !snap.HasWebhook() {
		t.Error("HasWebhook() = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"port out of range", `{"system": {"port": 70000}}`},
		{"negative threshold", `{"detection": {"rms_threshold": -1}}`},
		{"bad webhook url", `{"notifications": {"webhook": {"url": "not a url"}}}`},
		{"bad storage mode", `{"dump": {"storage_mode": "tape"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tempConfig(t, tc.contents)
			if err := cfg.Load(); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}

func TestZabbixDefaults(t *testing.T) {
	cfg := tempConfig(t, `{
		"notifications": {"zabbix": {"server": "zbx.example.com", "host": "monitor", "key": "noise.alert"}}
	}`)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := cfg.Snapshot()
	if !snap.HasZabbix() {
		t.Error("HasZabbix() = false, want true")
	}
	if snap.ZabbixPort != DefaultZabbixPort {
		t.Errorf("ZabbixPort = %d, want %d", snap.ZabbixPort, DefaultZabbixPort)
	}
}

func TestDumpConfigDefaults(t *testing.T) {
	cfg := tempConfig(t, `{"dump": {"enabled": true, "local_path": "/tmp/dumps"}}`)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	dump := cfg.DumpConfig()
	if dump.StorageMode != types.StorageLocal {
		t.Errorf("StorageMode = %q, want %q", dump.StorageMode, types.StorageLocal)
	}
	if dump.RetentionDays != types.DefaultDumpRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", dump.RetentionDays, types.DefaultDumpRetentionDays)
	}
}

func TestSettersPersist(t *testing.T) {
	cfg := tempConfig(t, "")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := cfg.SetRMSThreshold(800); err != nil {
		t.Fatalf("SetRMSThreshold: %v", err)
	}
	if err := cfg.SetWebhookURL("https://example.com/alerts"); err != nil {
		t.Fatalf("SetWebhookURL: %v", err)
	}

	// A fresh Config reading the same file sees the changes.
	reloaded := New(cfg.filePath)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.RMSThreshold != 800 {
		t.Errorf("reloaded RMSThreshold = %v, want 800", snap.RMSThreshold)
	}
	if snap.WebhookURL != "https://example.com/alerts" {
		t.Errorf("reloaded WebhookURL = %q", snap.WebhookURL)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}
	other, _ := GenerateAPIKey()
	if key == other {
		t.Error("two generated keys are identical")
	}
}
