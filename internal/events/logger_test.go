package events

import (
	"path/filepath"
	"testing"
)

func TestLogAndReadLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	in := []*AlertEvent{
		{Event: EventStarted},
		{Event: EventRaised, RMS: 1200, Threshold: 400},
		{Event: EventCleared, RMS: 80, Threshold: 400, DurationMs: 4000},
	}
	for _, e := range in {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadLast(path, 2)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadLast returned %d events, want 2", len(got))
	}
	// Newest first
	if got[0].Event != EventCleared || got[1].Event != EventRaised {
		t.Errorf("events = [%s %s], want [alert_cleared alert_raised]", got[0].Event, got[1].Event)
	}
	if got[0].DurationMs != 4000 {
		t.Errorf("cleared DurationMs = %d, want 4000", got[0].DurationMs)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("logged event has zero timestamp")
	}
}

func TestReadLastMissingFile(t *testing.T) {
	got, err := ReadLast(filepath.Join(t.TempDir(), "nope.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadLast on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadLast returned %d events, want 0", len(got))
	}
}
