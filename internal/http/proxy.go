package http

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/observability"
)

// HomeProxy forwards /api/* requests (except /api/weather) to the
// home-automation API with the bearer credential injected, passing the
// upstream status code and body through untouched. The browser never sees
// the credential; it only talks to this process.
type HomeProxy struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHomeProxy creates a proxy targeting baseURL (e.g. http://192.168.10.104:8123).
func NewHomeProxy(baseURL, token string, timeout time.Duration, logger *zap.Logger) *HomeProxy {
	return &HomeProxy{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler for GET and POST passthrough.
func (p *HomeProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstreamURL := p.baseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("home-automation proxy failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		observability.ProxyRequestsTotal.WithLabelValues(r.Method, "error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	observability.ProxyRequestsTotal.WithLabelValues(r.Method, statusCodeString(resp.StatusCode)).Inc()

	// Upstream errors pass through as-is: the dashboard handles them.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug("proxy body copy interrupted", zap.Error(err))
	}
}
