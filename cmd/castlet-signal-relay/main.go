package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/castlet/signal-relay/internal/config"
	"github.com/castlet/signal-relay/internal/httpserver"
	"github.com/castlet/signal-relay/internal/metrics"
	"github.com/castlet/signal-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting castlet-signal-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"session_ttl", cfg.SessionTTL,
		"session_sweep_interval", cfg.SweepInterval,
		"max_sessions", cfg.MaxSessions,
		"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"static_document_set", cfg.StaticDocument != "",
	)

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	logListenAddresses(logger, ln.Addr())

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)

	m := metrics.New()
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: buildTime})

	sig := signaling.NewServer(signaling.Config{
		SessionTTL:        cfg.SessionTTL,
		SweepInterval:     cfg.SweepInterval,
		MaxSessions:       cfg.MaxSessions,
		WSIdleTimeout:     cfg.SignalingWSIdleTimeout,
		WSPingInterval:    cfg.SignalingWSPingInterval,
		MaxMessageBytes:   cfg.MaxSignalingMessageBytes,
		MessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		AllowedOrigins:    cfg.AllowedOrigins,
		Metrics:           m,
		Logger:            logger,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format. The origin policy
	// applies here too so browser-based dashboards on an allowed origin can
	// scrape directly.
	srv.Mux().Handle("GET /metrics", srv.OriginMiddleware()(metrics.PrometheusHandler(m)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Tear down sessions first so session-ended notifications still reach
	// connected peers, then stop accepting HTTP.
	sig.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
