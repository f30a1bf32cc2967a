package metrics

import "sync"

// Event counter names.
const (
	SessionCreated = "session_created"
	ViewerJoined   = "viewer_joined"
	ViewerLeft     = "viewer_left"
	MessageRouted  = "message_routed"

	// Session teardown, labeled by what triggered it.
	SessionEndedByHost       = "session_ended_by_host"
	SessionEndedByDisconnect = "session_ended_by_disconnect"
	SessionEndedExpired      = "session_ended_expired"
	SessionEndedShutdown     = "session_ended_shutdown"

	// Drop reasons for inbound signaling messages.
	DropReasonRoleMismatch    = "drop_role_mismatch"
	DropReasonUnknownSession  = "drop_unknown_session"
	DropReasonUnknownType     = "drop_unknown_type"
	DropReasonParseError      = "drop_parse_error"
	DropReasonRateLimited     = "drop_rate_limited"
	DropReasonTooManySessions = "drop_too_many_sessions"
)

// EventNames lists every counter the relay increments, in exposition order.
// PrometheusHandler exports all of them, zero-valued or not, so a scrape sees
// the full event vocabulary from the first request.
var EventNames = []string{
	SessionCreated,
	ViewerJoined,
	ViewerLeft,
	MessageRouted,
	SessionEndedByHost,
	SessionEndedByDisconnect,
	SessionEndedExpired,
	SessionEndedShutdown,
	DropReasonRoleMismatch,
	DropReasonUnknownSession,
	DropReasonUnknownType,
	DropReasonParseError,
	DropReasonRateLimited,
	DropReasonTooManySessions,
}

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay deliberately does not pull in a metrics SDK; the counters exist to
// keep routing/lifecycle decisions observable and testable, and are exposed in
// Prometheus text format by PrometheusHandler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
