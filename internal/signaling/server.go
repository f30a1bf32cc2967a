package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castlet/signal-relay/internal/config"
	"github.com/castlet/signal-relay/internal/metrics"
	"github.com/castlet/signal-relay/internal/origin"
	"github.com/castlet/signal-relay/internal/ratelimit"
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxSessions   int

	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration

	MaxMessageBytes   int64
	MessagesPerSecond int

	// AllowedOrigins is applied to the WebSocket upgrade; empty means same-host
	// only. Entries must be normalized origins or "*".
	AllowedOrigins []string

	// Clock and Codes are injectable for deterministic tests; nil selects the
	// real clock and the crypto/rand code source.
	Clock ratelimit.Clock
	Codes CodeSource

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = config.DefaultSessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = config.DefaultSweepInterval
	}
	if c.WSIdleTimeout <= 0 {
		c.WSIdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if c.WSPingInterval <= 0 || c.WSPingInterval >= c.WSIdleTimeout {
		c.WSPingInterval = c.WSIdleTimeout / 3
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if c.Clock == nil {
		c.Clock = ratelimit.RealClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventDisconnect
)

type event struct {
	kind eventKind
	peer *Peer
	msg  Message
}

// Server is the signaling relay core. It accepts WebSocket connections and
// processes every inbound event (message, disconnect, sweep tick) on a single
// goroutine, so one event is fully handled, including all registry mutation
// and outbound sends, before the next.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	registry  *Registry
	lifecycle *Lifecycle
	router    *Router

	upgrader websocket.Upgrader

	events chan event
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()

	registry := NewRegistry(cfg.Clock, cfg.Codes, cfg.MaxSessions)
	lifecycle := NewLifecycle(registry, cfg.Clock, cfg.SessionTTL, cfg.Metrics, cfg.Logger)

	s := &Server{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		registry:  registry,
		lifecycle: lifecycle,
		router:    NewRouter(registry, lifecycle, cfg.Metrics, cfg.Logger),
		events:    make(chan event, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	go s.run()
	return s
}

// Registry exposes the session registry for health/introspection endpoints
// and tests. Mutation stays with the event loop.
func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// Close tears down every active session (notifying all parties) and stops the
// event loop. Call before the HTTP server stops serving so the notifications
// can still be delivered.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

func (s *Server) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-ticker.C:
			s.lifecycle.Sweep()
		case <-s.quit:
			// Drain events already queued so disconnects are not lost, then end
			// every session while the write pumps are still running.
			for {
				select {
				case ev := <-s.events:
					s.handle(ev)
				default:
					s.lifecycle.EndAll()
					return
				}
			}
		}
	}
}

func (s *Server) handle(ev event) {
	switch ev.kind {
	case eventMessage:
		s.router.Route(ev.peer, ev.msg)
	case eventDisconnect:
		s.lifecycle.Disconnect(ev.peer)
	}
}

// enqueue hands an event to the loop. After shutdown begins events are
// discarded; EndAll already notifies everyone.
func (s *Server) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		// Non-browser clients don't send Origin.
		return true
	}
	normalized, originHost, ok := origin.Normalize(originHeader)
	return ok && origin.IsAllowed(normalized, originHost, r.Host, s.cfg.AllowedOrigins)
}

// ServeHTTP upgrades the connection and runs its read loop. One goroutine per
// connection reads frames and feeds the event loop; a second pumps outbound
// messages; all session logic happens on the event loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wc := newWSConn(conn, s.cfg.WSPingInterval)
	peer := NewPeer(NewConnID(), wc)
	s.registry.AddPeer(peer)
	s.log.Debug("connection established", "conn_id", peer.ID, "remote_addr", r.RemoteAddr)

	go wc.writePump()
	s.readLoop(peer, wc)
}

func (s *Server) readLoop(p *Peer, wc *wsConn) {
	defer func() {
		wc.Close()
		s.enqueue(event{kind: eventDisconnect, peer: p})
		s.log.Debug("connection closed", "conn_id", p.ID)
	}()

	conn := wc.conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	resetIdleDeadline := func() {
		if s.cfg.WSIdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
		}
	}
	resetIdleDeadline()
	conn.SetPongHandler(func(string) error {
		resetIdleDeadline()
		return nil
	})

	limiter := ratelimit.NewBucket(
		s.cfg.Clock,
		int64(s.cfg.MessagesPerSecond),
		int64(s.cfg.MessagesPerSecond),
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resetIdleDeadline()

		// The rate limit applies after reading so bytes already buffered by the
		// OS are consumed; closing with unread data risks an abortive close that
		// hides the close reason from the client.
		if !limiter.Allow() {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			wc.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			wc.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			// Malformed input is surfaced to the sender only; the connection
			// stays open.
			s.metrics.Inc(metrics.DropReasonParseError)
			p.Send(errorMessage(err.Error()))
			continue
		}

		s.enqueue(event{kind: eventMessage, peer: p, msg: msg})
	}
}
