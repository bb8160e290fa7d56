package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/models"
	"github.com/jaehyunpark/clockproxy/internal/observability"
)

// Persister mirrors the in-memory snapshot to durable storage so the cache
// survives a restart. Implementations: FilePersister, MemcachedPersister.
type Persister interface {
	Load() (models.Snapshot, time.Time, error)
	Save(snapshot models.Snapshot, capturedAt time.Time) error
}

// Store holds the last merged composite snapshot and its capture time.
// All access is mutex-guarded; the snapshot is only ever replaced wholesale,
// never partially mutated, so readers can never observe a torn merge.
type Store struct {
	mu         sync.Mutex
	persister  Persister
	logger     *zap.Logger
	ttl        time.Duration
	snapshot   models.Snapshot
	capturedAt time.Time
}

// NewStore creates a Store with the given freshness TTL and durable backend.
func NewStore(persister Persister, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		persister: persister,
		logger:    logger,
		ttl:       ttl,
	}
}

// Load populates the store from durable storage. An absent or malformed
// backing store leaves the state empty (cold start) and is never fatal.
func (s *Store) Load() {
	snapshot, capturedAt, err := s.persister.Load()
	if err != nil {
		s.logger.Warn("cache load failed, starting cold", zap.Error(err))
		return
	}
	if snapshot == nil {
		s.logger.Info("no cached snapshot, starting cold")
		return
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.capturedAt = capturedAt
	s.mu.Unlock()
	s.logger.Info("cached snapshot loaded",
		zap.Time("captured_at", capturedAt),
		zap.Int("sources", len(snapshot)))
}

// Fresh reports whether a snapshot exists and is younger than the TTL.
func (s *Store) Fresh(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil && now.Sub(s.capturedAt) < s.ttl
}

// Snapshot returns the current snapshot and its capture time. ok is false on
// cold start before any cycle has completed.
func (s *Store) Snapshot() (snapshot models.Snapshot, capturedAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, time.Time{}, false
	}
	return s.snapshot, s.capturedAt, true
}

// Update replaces the snapshot and persists it synchronously. A persist
// failure is logged and swallowed: the in-memory state stays authoritative
// for the running process.
func (s *Store) Update(snapshot models.Snapshot, capturedAt time.Time) {
	s.mu.Lock()
	s.snapshot = snapshot
	s.capturedAt = capturedAt
	s.mu.Unlock()

	observability.SnapshotCapturedAt.Set(float64(capturedAt.Unix()))
	if err := s.persister.Save(snapshot, capturedAt); err != nil {
		observability.CachePersistErrorsTotal.Inc()
		s.logger.Warn("cache persist failed", zap.Error(err))
	}
}
