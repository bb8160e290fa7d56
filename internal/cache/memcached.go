package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/jaehyunpark/clockproxy/internal/models"
)

const snapshotKey = "clockproxy:snapshot"

// MemcachedPersister mirrors the snapshot into memcached instead of a local
// file, for deployments where the process filesystem is ephemeral. The whole
// composite is stored under a single key in the cache-file format.
type MemcachedPersister struct {
	client *memcache.Client
}

// NewMemcachedPersister creates a MemcachedPersister. addrs is a
// comma-separated list (e.g. "localhost:11211" or "host1:11211,host2:11211").
// timeout and maxIdleConns configure the client; both use package defaults
// if zero.
func NewMemcachedPersister(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedPersister, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedPersister{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Load implements Persister. A missing key is a cold start, not an error.
func (p *MemcachedPersister) Load() (models.Snapshot, time.Time, error) {
	item, err := p.client.Get(snapshotKey)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("memcached get: %w", err)
	}
	var file models.CacheFile
	if err := json.Unmarshal(item.Value, &file); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse cached snapshot: %w", err)
	}
	return file.Weather, file.Timestamp, nil
}

// Save implements Persister. No expiration: staleness is decided by the
// Store's TTL against the stored timestamp, and an old snapshot is still
// useful as merge fallback.
func (p *MemcachedPersister) Save(snapshot models.Snapshot, capturedAt time.Time) error {
	raw, err := json.Marshal(models.CacheFile{Weather: snapshot, Timestamp: capturedAt})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return p.client.Set(&memcache.Item{Key: snapshotKey, Value: raw})
}

// Ping checks if memcached is reachable. Used for health checks.
func (p *MemcachedPersister) Ping() error {
	return p.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (p *MemcachedPersister) Close() error {
	return p.client.Close()
}
