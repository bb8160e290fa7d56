package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/models"
)

func TestClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"header":{"resultCode":"00"}}}`))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceObservation, server.URL)

	if !res.OK() {
		t.Fatalf("Fetch() failed: %+v", res.Err)
	}
	if !strings.Contains(string(res.Value), "resultCode") {
		t.Errorf("Fetch() value = %s, want upstream body", res.Value)
	}
}

// TestClient_Fetch_ParseFailure verifies a 200 with a non-JSON body (the
// portal ships XML error pages) is a failure carrying a truncated excerpt.
func TestClient_Fetch_ParseFailure(t *testing.T) {
	longBody := "<OpenAPI_ServiceResponse>" + strings.Repeat("x", 500) + "</OpenAPI_ServiceResponse>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(longBody))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceObservation, server.URL)

	if res.OK() {
		t.Fatal("Fetch() succeeded on non-JSON body, want failure")
	}
	if res.Err.Kind != FailureParse {
		t.Errorf("failure kind = %s, want %s", res.Err.Kind, FailureParse)
	}
	if len(res.Err.Excerpt) != excerptLimit {
		t.Errorf("excerpt length = %d, want %d", len(res.Err.Excerpt), excerptLimit)
	}
	if !strings.HasPrefix(res.Err.Excerpt, "<OpenAPI_ServiceResponse>") {
		t.Errorf("excerpt = %q, want prefix of raw body", res.Err.Excerpt)
	}
}

func TestClient_Fetch_BadStatusNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceDailyForecast, server.URL)

	if res.OK() {
		t.Fatal("Fetch() succeeded on 503 text body, want failure")
	}
	if res.Err.Kind != FailureStatus {
		t.Errorf("failure kind = %s, want %s", res.Err.Kind, FailureStatus)
	}
}

// TestClient_Fetch_NonTwoHundredJSONBody pins the classification rule: a
// parseable JSON document is a success even with a non-2xx status, since the
// portal sometimes delivers usable error documents that the dashboard renders.
func TestClient_Fetch_NonTwoHundredJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"response":{"header":{"resultCode":"99"}}}`))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourcePollution, server.URL)

	if !res.OK() {
		t.Fatalf("Fetch() = %+v, want success for parseable JSON body", res.Err)
	}
}

// TestClient_Fetch_ErrorBearingJSONBody: a body that parses but carries a
// top-level "error" key (the portal's quota/denial shape) is a failure, so
// the merge keeps the prior cached value instead of adopting the error
// document for a full TTL window.
func TestClient_Fetch_ErrorBearingJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"LIMITED NUMBER OF SERVICE REQUESTS EXCEEDS"}`))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourcePollution, server.URL)

	if res.OK() {
		t.Fatal("Fetch() succeeded on error document, want failure")
	}
	if res.Err.Kind != FailureUpstream {
		t.Errorf("failure kind = %s, want %s", res.Err.Kind, FailureUpstream)
	}
	if !strings.Contains(res.Err.Excerpt, "LIMITED NUMBER") {
		t.Errorf("excerpt = %q, want upstream error message", res.Err.Excerpt)
	}
}

// TestClient_Fetch_NestedErrorKeyIsPayload: only a top-level "error" key marks
// failure; "error" fields nested inside the payload are upstream data.
func TestClient_Fetch_NestedErrorKeyIsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"error":"embedded","items":[]}}`))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceObservation, server.URL)

	if !res.OK() {
		t.Fatalf("Fetch() = %+v, want success for nested error field", res.Err)
	}
}

func TestClient_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := NewClient(time.Second, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceObservation, server.URL)

	if res.OK() {
		t.Fatal("Fetch() succeeded against closed server, want failure")
	}
	if res.Err.Kind != FailureNetwork {
		t.Errorf("failure kind = %s, want %s", res.Err.Kind, FailureNetwork)
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(50*time.Millisecond, zap.NewNop(), false)
	res := c.Fetch(context.Background(), models.SourceShortForecast, server.URL)

	if res.OK() {
		t.Fatal("Fetch() succeeded past timeout, want failure")
	}
	if res.Err.Kind != FailureTimeout {
		t.Errorf("failure kind = %s, want %s", res.Err.Kind, FailureTimeout)
	}
}

// TestClient_Fetch_BreakerOpens verifies that with the breaker enabled a
// persistently failing source stops receiving traffic and reports
// breaker_open, which the merge policy treats as an ordinary failure.
func TestClient_Fetch_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(time.Second, zap.NewNop(), true)

	// gobreaker's default ReadyToTrip fires after 5 consecutive failures.
	for i := 0; i < 6; i++ {
		res := c.Fetch(context.Background(), models.SourceObservation, server.URL)
		if res.OK() {
			t.Fatalf("fetch %d succeeded, want parse failure", i)
		}
	}

	hitsBefore := hits.Load()
	res := c.Fetch(context.Background(), models.SourceObservation, server.URL)
	if res.OK() || res.Err.Kind != FailureBreakerOpen {
		t.Fatalf("Fetch() after trip = %+v, want breaker_open failure", res)
	}
	if got := hits.Load(); got != hitsBefore {
		t.Errorf("open breaker still reached upstream (%d -> %d hits)", hitsBefore, got)
	}

	// Other sources keep their own breakers.
	if res := c.Fetch(context.Background(), models.SourcePollution, server.URL); res.Err.Kind != FailureParse {
		t.Errorf("pollution fetch kind = %s, want independent %s", res.Err.Kind, FailureParse)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("http://apis.data.go.kr/1360000/VilageFcstInfoService_2.0/getUltraSrtNcst?serviceKey=secret&nx=60")
	if strings.Contains(got, "secret") {
		t.Errorf("redactURL leaked query: %q", got)
	}
	if got != "http://apis.data.go.kr/1360000/VilageFcstInfoService_2.0/getUltraSrtNcst" {
		t.Errorf("redactURL = %q", got)
	}
}
