// Package notify fans noise alert transitions out to the configured
// notification channels: webhook, Microsoft Graph email, Zabbix trapper
// and a local JSONL log.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/audexa/noisewatch/internal/config"
	"github.com/audexa/noisewatch/internal/util"
)

// AlertNotifier manages notifications for noise alert events. Each
// channel sends at most once per alert period, and clear notifications
// go only to channels that sent the corresponding raise.
type AlertNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track which notifications have been sent for the current alert
	webhookSent bool
	emailSent   bool
	logSent     bool
	zabbixSent  bool

	raisedAt time.Time

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewAlertNotifier returns an AlertNotifier configured with the given config.
func NewAlertNotifier(cfg *config.Config) *AlertNotifier {
	return &AlertNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *AlertNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *AlertNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// AlertRaised triggers notifications when a noise alert is raised. The
// dump parameter carries pre-roll capture details when available.
func (n *AlertNotifier) AlertRaised(rms float64, dump *DumpInfo) {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	n.raisedAt = time.Now()
	n.mu.Unlock()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() { n.sendAlertWebhook(cfg, rms, dump) })
	n.trySend(&n.emailSent, cfg.HasGraph(), func() { n.sendAlertEmail(cfg, rms, dump) })
	n.trySend(&n.logSent, cfg.HasLogPath(), func() { n.logAlertRaised(cfg, rms, dump) })
	n.trySend(&n.zabbixSent, cfg.HasZabbix(), func() { n.sendAlertZabbix(cfg, rms) })
}

// trySend sends a notification if the condition is met and not already sent.
func (n *AlertNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// AlertCleared triggers clear notifications when a noise alert ends.
func (n *AlertNotifier) AlertCleared(rms float64) {
	cfg := n.cfg.Snapshot()

	// Only send clear notifications if we sent the corresponding raise
	n.mu.Lock()
	sendWebhook := n.webhookSent
	sendEmail := n.emailSent
	sendLog := n.logSent
	sendZabbix := n.zabbixSent
	var durationMs int64
	if !n.raisedAt.IsZero() {
		durationMs = time.Since(n.raisedAt).Milliseconds()
	}
	// Reset notification state for the next alert period
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.zabbixSent = false
	n.raisedAt = time.Time{}
	n.mu.Unlock()

	if sendWebhook {
		go n.sendClearedWebhook(cfg, durationMs, rms)
	}
	if sendEmail {
		go n.sendClearedEmail(cfg, durationMs, rms)
	}
	if sendLog {
		go n.logAlertCleared(cfg, durationMs, rms)
	}
	if sendZabbix {
		go n.sendClearedZabbix(cfg, durationMs, rms)
	}
}

// Reset clears the notification state.
func (n *AlertNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.zabbixSent = false
	n.raisedAt = time.Time{}
	n.mu.Unlock()
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendAlertWebhook(cfg config.Snapshot, rms float64, dump *DumpInfo) {
	util.LogNotifyResult(
		func() error { return SendAlertWebhook(cfg.WebhookURL, rms, cfg.RMSThreshold, dump) },
		"Alert webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendClearedWebhook(cfg config.Snapshot, durationMs int64, rms float64) {
	util.LogNotifyResult(
		func() error { return SendClearedWebhook(cfg.WebhookURL, durationMs, rms, cfg.RMSThreshold) },
		"Cleared webhook",
	)
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendAlertEmail(cfg config.Snapshot, rms float64, dump *DumpInfo) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error { return n.sendAlertEmailWithClient(graphCfg, rms, cfg.RMSThreshold, dump) },
		"Alert email",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendClearedEmail(cfg config.Snapshot, durationMs int64, rms float64) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error { return n.sendClearedEmailWithClient(graphCfg, durationMs, rms, cfg.RMSThreshold) },
		"Cleared email",
	)
}

// sendEmail handles the common email sending infrastructure.
func (n *AlertNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// sendAlertEmailWithClient sends a noise alert email using the cached Graph client.
func (n *AlertNotifier) sendAlertEmailWithClient(cfg *GraphConfig, rms, threshold float64, dump *DumpInfo) error {
	subject := "[ALERT] Noise Detected - " + AppName
	body := fmt.Sprintf(
		"Ambient noise exceeded the alert threshold.\n\n"+
			"RMS:       %.1f\n"+
			"Threshold: %.1f\n"+
			"Time:      %s\n\n"+
			"The alert is ongoing. Please check the monitored environment.",
		rms, threshold, util.HumanTime(),
	)
	if dump != nil && dump.Err == nil {
		body += fmt.Sprintf("\n\nA pre-roll audio dump was captured: %s (%d bytes).", dump.Filename, dump.SizeBytes)
	}
	return n.sendEmail(cfg, subject, body)
}

// sendClearedEmailWithClient sends an alert-cleared email using the cached Graph client.
func (n *AlertNotifier) sendClearedEmailWithClient(cfg *GraphConfig, durationMs int64, rms, threshold float64) error {
	subject := "[OK] Noise Cleared - " + AppName
	body := fmt.Sprintf(
		"Ambient noise returned below the alert threshold.\n\n"+
			"RMS:         %.1f\n"+
			"Loud lasted: %s\n"+
			"Threshold:   %.1f\n"+
			"Time:        %s",
		rms, util.FormatDuration(durationMs), threshold, util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) logAlertRaised(cfg config.Snapshot, rms float64, dump *DumpInfo) {
	util.LogNotifyResult(
		func() error { return LogAlertRaised(cfg.LogPath, rms, cfg.RMSThreshold, dump) },
		"Alert log",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) logAlertCleared(cfg config.Snapshot, durationMs int64, rms float64) {
	util.LogNotifyResult(
		func() error { return LogAlertCleared(cfg.LogPath, durationMs, rms, cfg.RMSThreshold) },
		"Cleared log",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendAlertZabbix(cfg config.Snapshot, rms float64) {
	util.LogNotifyResult(
		func() error {
			return SendAlertZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey, rms, cfg.RMSThreshold)
		},
		"Alert zabbix",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendClearedZabbix(cfg config.Snapshot, durationMs int64, rms float64) {
	util.LogNotifyResult(
		func() error {
			return SendClearedZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey, durationMs, rms, cfg.RMSThreshold)
		},
		"Cleared zabbix",
	)
}
