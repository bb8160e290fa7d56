package models

import (
	"encoding/json"
	"time"
)

// Source identifies one upstream weather/air-quality API.
type Source string

const (
	SourceObservation   Source = "ncst"       // 초단기실황: current temperature, humidity
	SourceShortForecast Source = "ultra_fcst" // 초단기예보: next-6h outlook
	SourceDailyForecast Source = "fcst"       // 단기예보: today's high/low
	SourcePollution     Source = "pollution"  // AirKorea station reading
)

// Sources lists every upstream in fetch order.
var Sources = []Source{SourceObservation, SourceShortForecast, SourceDailyForecast, SourcePollution}

// Snapshot maps each source to its last known-good upstream payload, or an
// error marker when a source has never succeeded.
type Snapshot map[Source]json.RawMessage

// Clone returns a copy of the snapshot sharing the underlying payload bytes.
// Payloads are never mutated after a merge cycle, so sharing is safe.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ErrorMarker builds the per-source placeholder stored when a fetch fails and
// no prior value exists for that source.
func ErrorMarker(reason string) json.RawMessage {
	raw, err := json.Marshal(map[string]string{"error": reason})
	if err != nil {
		return json.RawMessage(`{"error":"unknown"}`)
	}
	return raw
}

// CacheFile is the durable cache format: the composite snapshot plus the time
// of the most recent merge cycle.
type CacheFile struct {
	Weather   Snapshot  `json:"weather"`
	Timestamp time.Time `json:"timestamp"`
}
