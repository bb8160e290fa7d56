package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/models"
	"github.com/jaehyunpark/clockproxy/internal/observability"
)

// excerptLimit bounds the raw-body excerpt captured on parse failures.
const excerptLimit = 200

// Client fetches a single upstream URL with a bounded timeout and classifies
// the outcome. It never retries; retry pressure is handled at the cycle level
// by the next cache-miss request.
type Client struct {
	http     *http.Client
	logger   *zap.Logger
	breakers map[models.Source]*gobreaker.CircuitBreaker
}

// NewClient creates a fetcher with the given per-call timeout. When
// breakerEnabled is set, each source gets its own circuit breaker so a
// persistently failing endpoint is skipped without burning a timeout per
// cycle; an open breaker is reported as an ordinary fetch failure.
func NewClient(timeout time.Duration, logger *zap.Logger, breakerEnabled bool) *Client {
	c := &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
	if breakerEnabled {
		c.breakers = make(map[models.Source]*gobreaker.CircuitBreaker, len(models.Sources))
		for _, source := range models.Sources {
			c.breakers[source] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:     string(source),
				Interval: time.Minute,
				Timeout:  5 * time.Minute,
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn("upstream breaker state change",
						zap.String("source", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
					observability.UpstreamBreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
				},
			})
		}
	}
	return c
}

// Fetch issues one GET against rawurl and classifies the outcome. The Result
// is always well-formed; no error escapes this boundary.
func (c *Client) Fetch(ctx context.Context, source models.Source, rawurl string) Result {
	start := time.Now()
	var res Result
	if cb, ok := c.breakers[source]; ok {
		out, err := cb.Execute(func() (interface{}, error) {
			r := c.fetch(ctx, source, rawurl)
			if r.Err != nil {
				return r, r.Err
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res = Result{Source: source, Err: &Error{Kind: FailureBreakerOpen, Reason: "circuit breaker open"}}
		} else {
			res = out.(Result)
		}
	} else {
		res = c.fetch(ctx, source, rawurl)
	}

	outcome := "success"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
	}
	observability.UpstreamFetchesTotal.WithLabelValues(string(source), outcome).Inc()
	observability.UpstreamFetchDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	c.logger.Debug("upstream fetch",
		zap.String("source", string(source)),
		zap.String("url", redactURL(rawurl)),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)))
	return res
}

func (c *Client) fetch(ctx context.Context, source models.Source, rawurl string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return Result{Source: source, Err: &Error{Kind: FailureNetwork, Reason: fmt.Sprintf("build request: %v", err)}}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		kind := FailureNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = FailureTimeout
		}
		return Result{Source: source, Err: &Error{Kind: kind, Reason: fmt.Sprintf("http request failed: %v", err)}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Source: source, Err: &Error{Kind: FailureNetwork, Reason: fmt.Sprintf("read response body: %v", err)}}
	}

	// Status alone does not decide the outcome: the portal sometimes ships a
	// usable JSON error document with a non-2xx status, and conversely a 200
	// with an XML error page. A body that parses as JSON and does not announce
	// failure is the success criterion, matching how callers consume the payload.
	if !json.Valid(body) {
		reason := fmt.Sprintf("invalid JSON (HTTP %d)", resp.StatusCode)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Result{Source: source, Err: &Error{Kind: FailureStatus, Reason: reason, Excerpt: excerpt(body)}}
		}
		return Result{Source: source, Err: &Error{Kind: FailureParse, Reason: reason, Excerpt: excerpt(body)}}
	}

	// A body that parses but announces failure with a top-level "error" key is
	// still a failed fetch: adopting it would evict a good cached value for a
	// full TTL window. Non-object bodies cannot carry the key and pass through.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err == nil {
		if msg, ok := doc["error"]; ok {
			return Result{Source: source, Err: &Error{
				Kind:    FailureUpstream,
				Reason:  fmt.Sprintf("upstream reported error (HTTP %d)", resp.StatusCode),
				Excerpt: excerpt(msg),
			}}
		}
	}

	return Result{Source: source, Value: body}
}

func excerpt(body []byte) string {
	if len(body) > excerptLimit {
		body = body[:excerptLimit]
	}
	return string(body)
}

func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

// redactURL strips the query string so service keys never reach the logs.
func redactURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
