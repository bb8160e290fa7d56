package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaehyunpark/clockproxy/internal/models"
)

func testSnapshot() models.Snapshot {
	return models.Snapshot{
		models.SourceObservation:   json.RawMessage(`{"response":{"body":{"items":1}}}`),
		models.SourceShortForecast: json.RawMessage(`{"response":{"body":{"items":2}}}`),
		models.SourceDailyForecast: json.RawMessage(`{"response":{"body":{"items":3}}}`),
		models.SourcePollution:     json.RawMessage(`{"response":{"body":{"items":4}}}`),
	}
}

// TestFilePersister_RoundTrip simulates a process restart: a saved snapshot
// reloads identically, including the capture timestamp.
func TestFilePersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather_cache.json")
	p := NewFilePersister(path)

	snapshot := testSnapshot()
	capturedAt := time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)

	if err := p.Save(snapshot, capturedAt); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, gotAt, err := NewFilePersister(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !gotAt.Equal(capturedAt) {
		t.Errorf("Load() capturedAt = %v, want %v", gotAt, capturedAt)
	}
	if len(got) != len(snapshot) {
		t.Fatalf("Load() returned %d sources, want %d", len(got), len(snapshot))
	}
	for source, want := range snapshot {
		if string(got[source]) != string(want) {
			t.Errorf("Load()[%s] = %s, want %s", source, got[source], want)
		}
	}
}

// TestFilePersister_LoadMissing verifies a missing file is a cold start, not
// an error.
func TestFilePersister_LoadMissing(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "absent.json"))
	snapshot, capturedAt, err := p.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if snapshot != nil {
		t.Errorf("Load() snapshot = %v, want nil", snapshot)
	}
	if !capturedAt.IsZero() {
		t.Errorf("Load() capturedAt = %v, want zero", capturedAt)
	}
}

// TestFilePersister_LoadMalformed verifies corrupt cache files surface an
// error for the store to treat as cold start.
func TestFilePersister_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather_cache.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFilePersister(path).Load(); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

// TestFilePersister_FileFormat pins the durable format:
// {"weather": <snapshot>, "timestamp": "<ISO-8601>"}.
func TestFilePersister_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather_cache.json")
	capturedAt := time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
	if err := NewFilePersister(path).Save(testSnapshot(), capturedAt); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var file map[string]json.RawMessage
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("cache file is not valid JSON: %v", err)
	}
	if _, ok := file["weather"]; !ok {
		t.Error(`cache file missing "weather" key`)
	}
	var ts string
	if err := json.Unmarshal(file["timestamp"], &ts); err != nil {
		t.Fatalf(`cache file "timestamp" is not a string: %v`, err)
	}
	if !strings.HasPrefix(ts, "2025-03-10T14:00:00") {
		t.Errorf("timestamp = %q, want ISO-8601 of capture time", ts)
	}
}

// TestFilePersister_NoLeftoverTempFiles verifies the atomic-rename write does
// not accumulate temp files.
func TestFilePersister_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersister(filepath.Join(dir, "weather_cache.json"))
	for i := 0; i < 3; i++ {
		if err := p.Save(testSnapshot(), time.Now()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("cache dir contains %v, want only weather_cache.json", names)
	}
}
