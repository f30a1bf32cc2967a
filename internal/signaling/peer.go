package signaling

import "github.com/google/uuid"

// Role is a peer's part in a session. It is assigned exactly once: on
// create-session (host) or on a successful join-session (viewer).
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleHost       Role = "host"
	RoleViewer     Role = "viewer"
)

// ConnID is an opaque identifier for one transport connection.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Sender delivers one outbound message over a peer's transport. Delivery is
// best-effort: a false return means the message was dropped (connection
// closing or backpressured) and is never an error.
type Sender interface {
	TrySend(Message) bool
}

// Peer is the relay-side state record for one connection. It lives in the
// Registry, keyed by ConnID, so routing state stays off the transport object.
//
// Fields are only mutated by the event loop; see Server.
type Peer struct {
	ID   ConnID
	Role Role

	// SessionCode is the session this peer belongs to; empty until the role is
	// assigned.
	SessionCode string

	// ViewerID is the session-scoped identifier assigned at join, monotonically
	// increasing and never reused within a session. -1 for hosts and unassigned
	// peers. It is the `from` value the host sees on this viewer's answers and
	// candidates, matching the earlier create-offer-for-viewer notification.
	ViewerID int

	sender Sender
}

func NewPeer(id ConnID, sender Sender) *Peer {
	return &Peer{
		ID:       id,
		Role:     RoleUnassigned,
		ViewerID: -1,
		sender:   sender,
	}
}

// Send delivers msg best-effort. Peers without a live transport (or whose
// transport is closing) drop silently.
func (p *Peer) Send(msg Message) {
	if p == nil || p.sender == nil {
		return
	}
	_ = p.sender.TrySend(msg)
}
