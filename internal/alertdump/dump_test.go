package alertdump

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/audexa/noisewatch/internal/source"
	"github.com/audexa/noisewatch/internal/types"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := []int16{0, 100, -100, 32767}
	data := encodeWAV(samples, 16000)

	if len(data) != wavHeaderSize+len(samples)*2 {
		t.Fatalf("encoded length = %d, want %d", len(data), wavHeaderSize+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data chunk length = %d, want %d", got, len(samples)*2)
	}
	// First sample after the header round-trips
	if got := int16(binary.LittleEndian.Uint16(data[wavHeaderSize+2:])); got != 100 {
		t.Errorf("sample 1 = %d, want 100", got)
	}
}

func TestCaptureWritesDump(t *testing.T) {
	dir := t.TempDir()
	ring := source.NewRing(1024)
	ring.Write([]int16{10, 20, 30, 40})

	d, err := NewDumper(types.DumpConfig{
		Enabled:     true,
		LocalPath:   dir,
		StorageMode: types.StorageLocal,
	}, ring, 16000, nil)
	if err != nil {
		t.Fatalf("NewDumper: %v", err)
	}

	info := d.Capture()
	if info == nil {
		t.Fatal("Capture returned nil with dumps enabled")
	}
	if info.Err != nil {
		t.Fatalf("Capture error: %v", info.Err)
	}

	data, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if int64(len(data)) != info.SizeBytes {
		t.Errorf("file size = %d, reported %d", len(data), info.SizeBytes)
	}
	if len(data) != wavHeaderSize+4*2 {
		t.Errorf("dump size = %d, want %d", len(data), wavHeaderSize+4*2)
	}
}

func TestCaptureDisabled(t *testing.T) {
	d, err := NewDumper(types.DumpConfig{}, source.NewRing(16), 16000, nil)
	if err != nil {
		t.Fatalf("NewDumper: %v", err)
	}
	if info := d.Capture(); info != nil {
		t.Errorf("Capture with dumps disabled = %+v, want nil", info)
	}
}

func TestCaptureEmptyRing(t *testing.T) {
	d, err := NewDumper(types.DumpConfig{
		Enabled:     true,
		LocalPath:   t.TempDir(),
		StorageMode: types.StorageLocal,
	}, source.NewRing(16), 16000, nil)
	if err != nil {
		t.Fatalf("NewDumper: %v", err)
	}

	info := d.Capture()
	if info == nil || info.Err == nil {
		t.Error("Capture with empty ring should report an error")
	}
}

func TestCleanupDeletesExpiredLocalFiles(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "alert-2020-01-01-12-00-00.wav")
	fresh := filepath.Join(dir, "alert-"+time.Now().Format(dumpTimeFormat)+".wav")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, unrelated} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	d, err := NewDumper(types.DumpConfig{
		Enabled:       true,
		LocalPath:     dir,
		StorageMode:   types.StorageLocal,
		RetentionDays: 7,
	}, source.NewRing(16), 16000, nil)
	if err != nil {
		t.Fatalf("NewDumper: %v", err)
	}

	d.runCleanup()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired dump was not deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh dump was deleted: %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Errorf("unrelated file was deleted: %v", err)
	}
}

func TestNewDumperRejectsTraversalPath(t *testing.T) {
	_, err := NewDumper(types.DumpConfig{
		Enabled:   true,
		LocalPath: "../escape",
	}, source.NewRing(16), 16000, nil)
	if err == nil {
		t.Error("NewDumper accepted a traversal path, want error")
	}
}
