package signaling

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/castlet/signal-relay/internal/metrics"
	"github.com/castlet/signal-relay/internal/ratelimit"
)

// EndReason labels what triggered a session teardown, for logs and counters.
type EndReason string

const (
	EndReasonHost       EndReason = "host_end"
	EndReasonDisconnect EndReason = "host_disconnect"
	EndReasonExpired    EndReason = "expired"
	EndReasonShutdown   EndReason = "shutdown"
)

func (r EndReason) metric() string {
	switch r {
	case EndReasonDisconnect:
		return metrics.SessionEndedByDisconnect
	case EndReasonExpired:
		return metrics.SessionEndedExpired
	case EndReasonShutdown:
		return metrics.SessionEndedShutdown
	default:
		return metrics.SessionEndedByHost
	}
}

// Lifecycle orchestrates session creation, join/leave, teardown, and the
// expiry sweep. Every method must run on the event loop; see Server.
type Lifecycle struct {
	registry *Registry
	clock    ratelimit.Clock
	ttl      time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewLifecycle(registry *Registry, clock ratelimit.Clock, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Lifecycle {
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		registry: registry,
		clock:    clock,
		ttl:      ttl,
		metrics:  m,
		log:      log,
	}
}

// Create allocates a session with p as host and replies with the new code.
// The caller has verified p is unassigned.
func (l *Lifecycle) Create(p *Peer) {
	sess, err := l.registry.Create(p)
	if err != nil {
		l.log.Warn("session create failed", "conn_id", p.ID, "err", err)
		l.metrics.Inc(metrics.DropReasonTooManySessions)
		p.Send(errorMessage("unable to create session"))
		return
	}

	p.Role = RoleHost
	p.SessionCode = sess.Code

	l.metrics.Inc(metrics.SessionCreated)
	l.log.Info("session created", "code", sess.Code, "conn_id", p.ID)

	p.Send(Message{Type: MessageTypeSessionCreated, Code: sess.Code})
}

// Join adds p to the session for code as a viewer. An unknown code gets a
// session-not-found reply and changes nothing. On success the host is told
// the new viewer count and asked to prepare an offer for the joiner.
func (l *Lifecycle) Join(p *Peer, code string) {
	sess, ok := l.registry.Get(code)
	if !ok {
		l.metrics.Inc(metrics.DropReasonUnknownSession)
		p.Send(Message{Type: MessageTypeSessionNotFound, Code: code})
		return
	}

	viewerID := sess.addViewer(p)
	p.Role = RoleViewer
	p.SessionCode = code
	p.ViewerID = viewerID

	l.metrics.Inc(metrics.ViewerJoined)
	l.log.Info("viewer joined", "code", code, "conn_id", p.ID, "viewer_id", viewerID)

	sess.Host.Send(Message{Type: MessageTypeViewerJoined, ViewerCount: ptr(sess.ViewerCount())})
	sess.Host.Send(Message{Type: MessageTypeCreateOfferForViewer, ViewerID: ptr(viewerID)})
}

// Leave removes p from the session's viewer list, if present, and tells the
// host the updated count. No-op for peers that are not registered viewers of
// that session.
func (l *Lifecycle) Leave(p *Peer, code string) {
	sess, ok := l.registry.Get(code)
	if !ok {
		return
	}
	if !sess.removeViewer(p) {
		return
	}
	p.SessionCode = ""

	l.metrics.Inc(metrics.ViewerLeft)
	l.log.Info("viewer left", "code", code, "conn_id", p.ID, "viewer_id", p.ViewerID)

	sess.Host.Send(Message{Type: MessageTypeViewerLeft, ViewerCount: ptr(sess.ViewerCount())})
}

// End tears down the session for code: host and every viewer are notified
// with session-ended, then the registry entry is removed. Ending an absent
// code is a no-op. The host notification is best-effort and matters only when
// the host is still connected (explicit end rather than disconnect).
func (l *Lifecycle) End(code string, reason EndReason) {
	sess, ok := l.registry.Get(code)
	if !ok {
		return
	}

	ended := Message{Type: MessageTypeSessionEnded, Code: code}
	sess.Host.Send(ended)
	for _, v := range sess.Viewers {
		v.Send(ended)
	}

	// Unbind every member so a still-connected peer of this session can no
	// longer affect whatever session reuses the code later.
	if sess.Host != nil {
		sess.Host.SessionCode = ""
	}
	for _, v := range sess.Viewers {
		v.SessionCode = ""
	}

	l.registry.Remove(code)

	l.metrics.Inc(reason.metric())
	l.log.Info("session ended",
		"code", code,
		"reason", string(reason),
		"viewer_count", sess.ViewerCount(),
		"age", l.clock.Now().Sub(sess.CreatedAt),
	)
}

// Disconnect handles a transport closure. A host departure ends its session;
// a viewer departure leaves it; an unbound peer needs nothing beyond record
// removal. Exactly one of these fires per disconnecting peer.
func (l *Lifecycle) Disconnect(p *Peer) {
	l.registry.RemovePeer(p.ID)

	if p.SessionCode == "" {
		return
	}
	switch p.Role {
	case RoleHost:
		l.End(p.SessionCode, EndReasonDisconnect)
	case RoleViewer:
		l.Leave(p, p.SessionCode)
	}
}

// Sweep force-ends every session older than the TTL. This is a hard age cap:
// a session in active use is still torn down once its absolute age passes the
// threshold.
func (l *Lifecycle) Sweep() {
	now := l.clock.Now()
	for _, sess := range l.registry.Sessions() {
		if now.Sub(sess.CreatedAt) > l.ttl {
			l.End(sess.Code, EndReasonExpired)
		}
	}
}

// EndAll tears down every active session, notifying all parties. Used on
// graceful shutdown before the transport stops serving.
func (l *Lifecycle) EndAll() {
	for _, sess := range l.registry.Sessions() {
		l.End(sess.Code, EndReasonShutdown)
	}
}

func viewerFrom(p *Peer) string {
	return strconv.Itoa(p.ViewerID)
}
