package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureWebhook(t *testing.T) (*httptest.Server, *[]WebhookPayload) {
	t.Helper()
	var received []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		received = append(received, p)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestSendAlertWebhook(t *testing.T) {
	srv, received := captureWebhook(t)

	dump := &DumpInfo{Filename: "alert-2026-08-23.wav", SizeBytes: 32044}
	if err := SendAlertWebhook(srv.URL, 1200, 400, dump); err != nil {
		t.Fatalf("SendAlertWebhook: %v", err)
	}

	if len(*received) != 1 {
		t.Fatalf("received %d payloads, want 1", len(*received))
	}
	p := (*received)[0]
	if p.Event != "noise_alert" {
		t.Errorf("event = %q, want noise_alert", p.Event)
	}
	if p.RMS != 1200 || p.Threshold != 400 {
		t.Errorf("rms/threshold = %v/%v, want 1200/400", p.RMS, p.Threshold)
	}
	if p.DumpFilename != dump.Filename || p.DumpSizeBytes != dump.SizeBytes {
		t.Errorf("dump fields = %q/%d, want %q/%d", p.DumpFilename, p.DumpSizeBytes, dump.Filename, dump.SizeBytes)
	}
	if p.Timestamp == "" {
		t.Error("timestamp is empty")
	}
}

func TestSendClearedWebhook(t *testing.T) {
	srv, received := captureWebhook(t)

	if err := SendClearedWebhook(srv.URL, 4500, 80, 400); err != nil {
		t.Fatalf("SendClearedWebhook: %v", err)
	}

	p := (*received)[0]
	if p.Event != "noise_cleared" {
		t.Errorf("event = %q, want noise_cleared", p.Event)
	}
	if p.LoudDurationMs != 4500 {
		t.Errorf("loud_duration_ms = %d, want 4500", p.LoudDurationMs)
	}
}

func TestSendWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := SendAlertWebhook(srv.URL, 1200, 400, nil); err == nil {
		t.Error("SendAlertWebhook succeeded against 500 endpoint, want error")
	}
}

func TestSendWebhookSkipsUnconfigured(t *testing.T) {
	if err := SendAlertWebhook("", 1200, 400, nil); err != nil {
		t.Errorf("SendAlertWebhook with empty URL = %v, want nil", err)
	}
}

func TestSendTestWebhookRequiresURL(t *testing.T) {
	if err := SendTestWebhook(""); err == nil {
		t.Error("SendTestWebhook with empty URL succeeded, want error")
	}
}

func TestParseRecipients(t *testing.T) {
	got := ParseRecipients(" a@example.com, ,b@example.com ")
	want := []string{"a@example.com", "b@example.com"}
	if len(got) != len(want) {
		t.Fatalf("ParseRecipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient %d = %q, want %q", i, got[i], want[i])
		}
	}
}
