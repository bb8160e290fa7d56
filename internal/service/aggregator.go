package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/cache"
	"github.com/jaehyunpark/clockproxy/internal/models"
	"github.com/jaehyunpark/clockproxy/internal/observability"
	"github.com/jaehyunpark/clockproxy/internal/upstream"
)

// Fetcher is the upstream boundary the aggregator depends on.
type Fetcher interface {
	Fetch(ctx context.Context, source models.Source, url string) upstream.Result
}

// URLResolver builds the request URL for a source at a given time.
type URLResolver interface {
	URL(source models.Source, now time.Time) (string, error)
}

// Aggregator orchestrates the weather composite: serve the cached snapshot
// while fresh, otherwise fan out to all upstream sources, merge each result
// against the previous snapshot, and persist the outcome.
type Aggregator struct {
	store     *cache.Store
	fetcher   Fetcher
	endpoints URLResolver
	logger    *zap.Logger
	now       func() time.Time

	// refreshMu serializes the check-fetch-merge-update cycle so concurrent
	// stale requests cannot interleave partial merges. A request arriving
	// during an in-flight refresh waits and is then served the fresh result.
	refreshMu sync.Mutex
}

// NewAggregator wires the aggregator. now is injectable for deterministic
// tests; pass time.Now in production.
func NewAggregator(store *cache.Store, fetcher Fetcher, endpoints URLResolver, logger *zap.Logger, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:     store,
		fetcher:   fetcher,
		endpoints: endpoints,
		logger:    logger,
		now:       now,
	}
}

// Get returns the composite snapshot, refreshing it first when stale. A
// missing service key surfaces as upstream.ErrMissingServiceKey before any
// fetch is attempted. Individual source failures never fail the request.
func (a *Aggregator) Get(ctx context.Context) (models.Snapshot, error) {
	if snapshot, ok := a.cached(); ok {
		return snapshot, nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// A refresh may have completed while this caller waited for the lock.
	if snapshot, ok := a.cached(); ok {
		return snapshot, nil
	}

	// The refresh outcome is cached and served to every later caller, so one
	// caller's disconnect or deadline must not abort it and turn the snapshot
	// into error markers for a whole TTL window. Each fetch stays bounded by
	// the client's own per-call timeout.
	return a.refresh(context.WithoutCancel(ctx))
}

func (a *Aggregator) cached() (models.Snapshot, bool) {
	now := a.now()
	if !a.store.Fresh(now) {
		return nil, false
	}
	snapshot, capturedAt, ok := a.store.Snapshot()
	if !ok {
		return nil, false
	}
	observability.CacheHitsTotal.Inc()
	a.logger.Debug("serving cached snapshot", zap.Time("captured_at", capturedAt))
	return snapshot, true
}

// refresh runs one full merge cycle. Caller must hold refreshMu.
func (a *Aggregator) refresh(ctx context.Context) (models.Snapshot, error) {
	now := a.now()
	start := time.Now()

	// Resolve every URL up front; a missing service key fails the request
	// before any network traffic.
	urls := make(map[models.Source]string, len(models.Sources))
	for _, source := range models.Sources {
		u, err := a.endpoints.URL(source, now)
		if err != nil {
			return nil, err
		}
		urls[source] = u
	}

	// Fan out: the four sources are independent, so one timeout period
	// bounds the whole cycle instead of four.
	results := make([]upstream.Result, len(models.Sources))
	var wg sync.WaitGroup
	for i, source := range models.Sources {
		wg.Add(1)
		go func(i int, source models.Source) {
			defer wg.Done()
			results[i] = a.fetcher.Fetch(ctx, source, urls[source])
		}(i, source)
	}
	wg.Wait()

	prev, _, _ := a.store.Snapshot()
	merged := make(models.Snapshot, len(models.Sources))
	for _, res := range results {
		switch {
		case res.OK():
			merged[res.Source] = res.Value
		case prev[res.Source] != nil:
			observability.StaleSourceServesTotal.WithLabelValues(string(res.Source)).Inc()
			a.logger.Warn("fetch failed, keeping previous value",
				zap.String("source", string(res.Source)),
				zap.String("reason", res.Err.Reason),
				zap.String("excerpt", res.Err.Excerpt))
			merged[res.Source] = prev[res.Source]
		default:
			a.logger.Warn("fetch failed with no previous value",
				zap.String("source", string(res.Source)),
				zap.String("reason", res.Err.Reason),
				zap.String("excerpt", res.Err.Excerpt))
			merged[res.Source] = models.ErrorMarker(res.Err.Reason)
		}
	}

	// capturedAt advances on every cycle: the cycle as a whole counts as a
	// refresh attempt even when some sources kept stale values.
	a.store.Update(merged, now)
	a.logger.Info("snapshot refreshed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("sources", len(merged)))
	return merged, nil
}
