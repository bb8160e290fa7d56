package upstream

import (
	"github.com/jaehyunpark/clockproxy/internal/models"
)

// FailureKind is a stable label for fetch failure classification in metrics.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureNetwork     FailureKind = "network"
	FailureStatus      FailureKind = "bad_status"
	FailureParse       FailureKind = "parse"
	FailureUpstream    FailureKind = "upstream_error"
	FailureBreakerOpen FailureKind = "breaker_open"
)

// Error describes a failed fetch for one source. A parse failure carries a
// truncated excerpt of the raw body for diagnostics.
type Error struct {
	Kind    FailureKind
	Reason  string
	Excerpt string
}

func (e *Error) Error() string {
	return e.Reason
}

// Result is the outcome of fetching one source: either Value is set (the body
// parsed as JSON) or Err is set, never both.
type Result struct {
	Source models.Source
	Value  []byte
	Err    *Error
}

// OK reports whether the fetch produced a usable payload.
func (r Result) OK() bool {
	return r.Err == nil
}
