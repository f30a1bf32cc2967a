package signaling

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/castlet/signal-relay/internal/ratelimit"
)

var (
	ErrTooManySessions = errors.New("too many active sessions")

	errCodeSpaceExhausted = errors.New("failed to allocate unique session code")
)

// maxCodeAttempts bounds the collision-retry loop. The code space has 9000
// entries; hitting this limit means the registry is effectively full.
const maxCodeAttempts = 10000

// Session binds one host to zero or more viewers under a short numeric code.
//
// Viewers keeps join order. CreatedAt is fixed at creation and never refreshed
// by activity; expiry is a hard TTL, not an idle timeout.
type Session struct {
	Code      string
	Host      *Peer
	Viewers   []*Peer
	CreatedAt time.Time

	nextViewerID int
}

func (s *Session) ViewerCount() int { return len(s.Viewers) }

// addViewer appends p in join order and assigns its session-scoped viewer
// identifier. Identifiers are never reused, so a later joiner's id stays
// stable when earlier viewers depart.
func (s *Session) addViewer(p *Peer) int {
	id := s.nextViewerID
	s.nextViewerID++
	s.Viewers = append(s.Viewers, p)
	return id
}

// removeViewer removes p by identity. Reports whether p was present.
func (s *Session) removeViewer(p *Peer) bool {
	for i, v := range s.Viewers {
		if v == p {
			s.Viewers = append(s.Viewers[:i], s.Viewers[i+1:]...)
			return true
		}
	}
	return false
}

// Registry owns every active Session and every connected Peer record. It is
// the single holder of session state; peers keep only a back-reference code.
//
// The mutex makes reads from HTTP handlers safe, but all mutation funnels
// through the Server's event loop.
type Registry struct {
	clock ratelimit.Clock
	codes CodeSource

	// maxSessions <= 0 means unlimited.
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
	peers    map[ConnID]*Peer
}

func NewRegistry(clock ratelimit.Clock, codes CodeSource, maxSessions int) *Registry {
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	if codes == nil {
		codes = NewSessionCode
	}
	return &Registry{
		clock:       clock,
		codes:       codes,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
		peers:       make(map[ConnID]*Peer),
	}
}

func (r *Registry) AddPeer(p *Peer) {
	r.mu.Lock()
	r.peers[p.ID] = p
	r.mu.Unlock()
}

func (r *Registry) RemovePeer(id ConnID) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

func (r *Registry) Peer(id ConnID) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

// Create allocates a Session with a fresh unique code and host as its only
// member. The caller (the lifecycle manager) binds the host's role and code.
func (r *Registry) Create(host *Peer) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrTooManySessions
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.codes()
		if err != nil {
			return nil, err
		}
		if len(code) != 4 {
			return nil, fmt.Errorf("code source produced %q, want 4 digits", code)
		}
		if _, taken := r.sessions[code]; taken {
			continue
		}

		sess := &Session{
			Code:      code,
			Host:      host,
			CreatedAt: r.clock.Now(),
		}
		r.sessions[code] = sess
		return sess, nil
	}

	return nil, errCodeSpaceExhausted
}

func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[code]
	return sess, ok
}

// Remove deletes the session for code. Removing an absent code is a no-op.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	delete(r.sessions, code)
	r.mu.Unlock()
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of all active sessions, for the expiry sweep
// and the shutdown teardown.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
