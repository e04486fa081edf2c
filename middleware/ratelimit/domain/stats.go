package domain

import (
	"context"
	"time"
)

// StatsEvent is one gate decision.
//
// Method and Path are plain strings so the same event works for non-HTTP
// transports. Mind cardinality: persisting per-key counters without control
// can blow up the number of series/keys in a base like Redis.
type StatsEvent struct {
	Key     string
	Class   Class
	Tier    string // empty outside tier mode
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore is the persistence strategy for gate decision counters.
//
// Implementations may store in Redis, memory, etc. The middleware treats
// Record as best-effort and never fails a request on a stats error.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Recorder receives operational metrics from the gate. Implementations must
// be safe for concurrent use.
type Recorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// Metric names emitted by the middleware.
const (
	MetricDecision = "ratelimit.decision"
	MetricLatency  = "ratelimit.latency"
)

// NopRecorder does nothing. It keeps the hot path free of nil checks.
type NopRecorder struct{}

func (NopRecorder) Add(string, float64, map[string]string)     {}
func (NopRecorder) Observe(string, float64, map[string]string) {}
