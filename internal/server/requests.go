package server

// Request types for control API endpoints with validation tags. These
// types define the expected input for each endpoint and use
// go-playground/validator struct tags for automatic validation.
// Pointer fields distinguish "not provided" from a zero value so
// settings can be updated partially.

// DetectionUpdateRequest is the request body for settings/detection.
type DetectionUpdateRequest struct {
	RMSThreshold *float64 `json:"rms_threshold" validate:"omitempty,gte=0,lte=32768"`
	PeriodMs     *int64   `json:"period_ms" validate:"omitempty,gte=10,lte=60000"`
}

// WebhookUpdateRequest is the request body for settings/webhook.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}

// LogUpdateRequest is the request body for settings/log.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for settings/email.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,email,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// ZabbixUpdateRequest is the request body for settings/zabbix.
type ZabbixUpdateRequest struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}
