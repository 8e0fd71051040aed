package notify

import (
	"fmt"

	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// UploadAbandonedParams describes an alert dump upload that exhausted
// all retries.
type UploadAbandonedParams struct {
	Filename   string
	S3Key      string
	RetryCount int
	LastError  string
}

// SendUploadAbandonedEmail sends an upload abandonment alert via Microsoft Graph.
func SendUploadAbandonedEmail(cfg *GraphConfig, p UploadAbandonedParams) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	subject := "[ALERT] Dump Upload Abandoned - " + AppName
	body := fmt.Sprintf(
		"An alert audio dump upload was abandoned at %s.\n\n"+
			"File: %s\n"+
			"S3 key: %s\n"+
			"Retries: %d\n"+
			"Last error: %s\n\n"+
			"The file could not be uploaded to S3 after exhausting all retries.",
		util.HumanTime(), p.Filename, p.S3Key, p.RetryCount, p.LastError,
	)

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(cfg *GraphConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	// Validate authentication first
	if err := client.ValidateAuth(); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + AppName
	body := fmt.Sprintf(
		"Test email from the noise monitor.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		util.HumanTime(),
	)

	recipients := ParseRecipients(cfg.Recipients)
	if err := client.SendMail(recipients, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
