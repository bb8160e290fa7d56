package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/lifecycle"
	"github.com/jaehyunpark/clockproxy/internal/service"
	"github.com/jaehyunpark/clockproxy/internal/upstream"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	aggregator *service.Aggregator
	logger     *zap.Logger
	startTime  time.Time
	// snapshotAge returns the cached snapshot's capture time, if any.
	snapshotAge func() (time.Time, bool)
	// cachePing, when set, checks persister reachability (memcached backend).
	cachePing func() error
}

// NewHandler returns a new Handler. snapshotAge and cachePing may be nil.
func NewHandler(aggregator *service.Aggregator, logger *zap.Logger, snapshotAge func() (time.Time, bool), cachePing func() error) *Handler {
	return &Handler{
		aggregator:  aggregator,
		logger:      logger,
		startTime:   time.Now(),
		snapshotAge: snapshotAge,
		cachePing:   cachePing,
	}
}

// GetWeather handles GET /api/weather. The response body is the composite
// snapshot keyed by source name; per-source failures surface as retained
// stale values or error markers inside the body, never as a request error.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.aggregator.Get(r.Context())
	if err != nil {
		if errors.Is(err, upstream.ErrMissingServiceKey) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "PUBLIC_DATA_SERVICE_KEY is missing"})
			return
		}
		h.logger.Error("weather aggregation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	checks := make(map[string]string)
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "clockproxy",
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.snapshotAge != nil {
		if capturedAt, ok := h.snapshotAge(); ok {
			resp["snapshot_age"] = time.Since(capturedAt).Round(time.Second).String()
		}
	}
	writeJSON(w, statusCode, resp)
}

// Preflight handles OPTIONS for every route: 200 with CORS headers (set by
// middleware), no body.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
