package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaehyunpark/clockproxy/internal/models"
)

// FilePersister mirrors the snapshot to a JSON file:
// {"weather": <snapshot>, "timestamp": "<ISO-8601>"}.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the cache file. A missing file returns (nil, zero, nil); a
// malformed one returns an error so the caller can start cold.
func (p *FilePersister) Load() (models.Snapshot, time.Time, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("read cache file: %w", err)
	}

	var file models.CacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse cache file: %w", err)
	}
	if file.Weather == nil {
		return nil, time.Time{}, nil
	}
	return file.Weather, file.Timestamp, nil
}

// Save writes the cache file via a temp file and atomic rename so a
// concurrent reader never observes a half-written file.
func (p *FilePersister) Save(snapshot models.Snapshot, capturedAt time.Time) error {
	data, err := json.MarshalIndent(models.CacheFile{Weather: snapshot, Timestamp: capturedAt}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache file: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
