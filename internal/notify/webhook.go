package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/audexa/noisewatch/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event          string  `json:"event"`
	RMS            float64 `json:"rms,omitempty"`
	Threshold      float64 `json:"threshold,omitempty"`
	LoudDurationMs int64   `json:"loud_duration_ms,omitempty"`
	Message        string  `json:"message,omitempty"`
	Timestamp      string  `json:"timestamp"`

	// Audio dump fields (noise_alert only)
	DumpFilename  string `json:"dump_filename,omitempty"`
	DumpSizeBytes int64  `json:"dump_size_bytes,omitempty"`
	DumpError     string `json:"dump_error,omitempty"`
}

// SendAlertWebhook notifies the configured webhook of a raised noise alert.
func SendAlertWebhook(webhookURL string, rms, threshold float64, dump *DumpInfo) error {
	payload := &WebhookPayload{
		Event:     "noise_alert",
		RMS:       rms,
		Threshold: threshold,
		Timestamp: timestampUTC(),
	}
	if dump != nil {
		if dump.Err != nil {
			payload.DumpError = dump.Err.Error()
		} else {
			payload.DumpFilename = dump.Filename
			payload.DumpSizeBytes = dump.SizeBytes
		}
	}
	return sendWebhook(webhookURL, payload)
}

// SendClearedWebhook notifies the configured webhook that the alert cleared.
func SendClearedWebhook(webhookURL string, durationMs int64, rms, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:          "noise_cleared",
		RMS:            rms,
		Threshold:      threshold,
		LoudDurationMs: durationMs,
		Timestamp:      timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
