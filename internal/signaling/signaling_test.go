package signaling

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/castlet/signal-relay/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSender records everything sent to a peer.
type fakeSender struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *fakeSender) TrySend(msg Message) bool {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return true
}

func (s *fakeSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

func (s *fakeSender) last(t *testing.T) Message {
	t.Helper()
	msgs := s.sent()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// relayFixture assembles a registry, lifecycle, and router around a fake
// clock and a deterministic code source.
type relayFixture struct {
	clock     *fakeClock
	metrics   *metrics.Metrics
	registry  *Registry
	lifecycle *Lifecycle
	router    *Router

	nextPeer int
}

func newRelayFixture(t *testing.T, codes CodeSource, ttl time.Duration) *relayFixture {
	t.Helper()
	clk := newFakeClock()
	m := metrics.New()
	reg := NewRegistry(clk, codes, 0)
	lc := NewLifecycle(reg, clk, ttl, m, discardLogger())
	return &relayFixture{
		clock:     clk,
		metrics:   m,
		registry:  reg,
		lifecycle: lc,
		router:    NewRouter(reg, lc, m, discardLogger()),
	}
}

// connect registers a fresh unassigned peer, as if a socket just upgraded.
func (f *relayFixture) connect() (*Peer, *fakeSender) {
	f.nextPeer++
	sender := &fakeSender{}
	p := NewPeer(NewConnID(), sender)
	f.registry.AddPeer(p)
	return p, sender
}

// host creates a session and returns the host peer, its sender, and the code.
func (f *relayFixture) host(t *testing.T) (*Peer, *fakeSender, string) {
	t.Helper()
	p, sender := f.connect()
	f.router.Route(p, Message{Type: MessageTypeCreateSession})
	created := sender.last(t)
	if created.Type != MessageTypeSessionCreated || created.Code == "" {
		t.Fatalf("create-session reply = %+v, want session-created with code", created)
	}
	sender.reset()
	return p, sender, created.Code
}

// viewer joins the given session and returns the viewer peer and its sender.
func (f *relayFixture) viewer(t *testing.T, code string) (*Peer, *fakeSender) {
	t.Helper()
	p, sender := f.connect()
	f.router.Route(p, Message{Type: MessageTypeJoinSession, Code: code})
	if p.Role != RoleViewer {
		t.Fatalf("peer role after join = %q, want viewer", p.Role)
	}
	return p, sender
}

func wantTypes(t *testing.T, got []Message, want ...MessageType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages %v, want types %v", len(got), messageTypes(got), want)
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("message %d type = %q, want %q (all: %v)", i, got[i].Type, want[i], messageTypes(got))
		}
	}
}

func messageTypes(msgs []Message) []MessageType {
	out := make([]MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}
