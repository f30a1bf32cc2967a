package signaling

import (
	"log/slog"

	"github.com/castlet/signal-relay/internal/metrics"
)

// Router dispatches one inbound (peer, message) pair to the correct
// recipients based on the declared type and the sender's role.
//
// A message whose sender role or session membership does not match, whose
// code does not resolve, or
// whose type is unrecognized is dropped: logged and counted, but never
// answered, so probing leaks neither session existence nor roles. Lifecycle
// messages (create/join/leave/end) are delegated to the Lifecycle manager.
type Router struct {
	registry  *Registry
	lifecycle *Lifecycle
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewRouter(registry *Registry, lifecycle *Lifecycle, m *metrics.Metrics, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		registry:  registry,
		lifecycle: lifecycle,
		metrics:   m,
		log:       log,
	}
}

func (r *Router) Route(p *Peer, msg Message) {
	switch msg.Type {
	case MessageTypeCreateSession:
		if p.Role != RoleUnassigned {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		r.lifecycle.Create(p)

	case MessageTypeJoinSession:
		if p.Role != RoleUnassigned {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		r.lifecycle.Join(p, msg.Code)

	case MessageTypeOffer:
		sess, ok := r.senderSession(p, msg)
		if !ok {
			return
		}
		if p.Role != RoleHost || sess.Host != p {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		out := Message{Type: MessageTypeOffer, SDP: msg.SDP, From: HostSender}
		for _, v := range sess.Viewers {
			v.Send(out)
		}
		r.metrics.Inc(metrics.MessageRouted)

	case MessageTypeAnswer:
		sess, ok := r.senderSession(p, msg)
		if !ok {
			return
		}
		if p.Role != RoleViewer || p.SessionCode != msg.Code {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		sess.Host.Send(Message{Type: MessageTypeAnswer, SDP: msg.SDP, From: viewerFrom(p)})
		r.metrics.Inc(metrics.MessageRouted)

	case MessageTypeICECandidate:
		sess, ok := r.senderSession(p, msg)
		if !ok {
			return
		}
		switch {
		case p.Role == RoleHost && sess.Host == p:
			out := Message{Type: MessageTypeICECandidate, Candidate: msg.Candidate}
			for _, v := range sess.Viewers {
				v.Send(out)
			}
		case p.Role == RoleViewer && p.SessionCode == msg.Code:
			sess.Host.Send(Message{Type: MessageTypeICECandidate, Candidate: msg.Candidate, From: viewerFrom(p)})
		default:
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		r.metrics.Inc(metrics.MessageRouted)

	case MessageTypeEndSession:
		sess, ok := r.senderSession(p, msg)
		if !ok {
			return
		}
		if p.Role != RoleHost || sess.Host != p {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		r.lifecycle.End(msg.Code, EndReasonHost)

	case MessageTypeLeaveSession:
		if p.Role != RoleViewer {
			r.drop(p, msg, metrics.DropReasonRoleMismatch)
			return
		}
		r.lifecycle.Leave(p, msg.Code)

	default:
		r.drop(p, msg, metrics.DropReasonUnknownType)
	}
}

// senderSession resolves the session a routed message refers to. An
// unresolvable code is a silent drop.
func (r *Router) senderSession(p *Peer, msg Message) (*Session, bool) {
	sess, ok := r.registry.Get(msg.Code)
	if !ok {
		r.drop(p, msg, metrics.DropReasonUnknownSession)
		return nil, false
	}
	return sess, true
}

func (r *Router) drop(p *Peer, msg Message, reason string) {
	r.metrics.Inc(reason)
	r.log.Debug("dropped signaling message",
		"reason", reason,
		"type", string(msg.Type),
		"conn_id", p.ID,
		"role", string(p.Role),
	)
}
