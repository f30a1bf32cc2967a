// Package config loads the relay's runtime configuration from environment
// variables and a small set of command line flags.
package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/castlet/signal-relay/internal/origin"
)

const (
	envVarListenAddr      = "CASTLET_SIGNAL_RELAY_LISTEN_ADDR"
	envVarMode            = "CASTLET_SIGNAL_RELAY_MODE"
	envVarLogFormat       = "CASTLET_SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "CASTLET_SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "CASTLET_SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarStaticDocument  = "CASTLET_SIGNAL_RELAY_STATIC_DOCUMENT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Session lifecycle knobs.
	envVarSessionTTL    = "SESSION_TTL"
	envVarSweepInterval = "SESSION_SWEEP_INTERVAL"
	envVarMaxSessions   = "MAX_SESSIONS"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev

	// DefaultSessionTTL is a hard cap on session age, not an idle timeout. A
	// session still in active use is torn down once its absolute age passes the
	// TTL; see the sweep in internal/signaling.
	DefaultSessionTTL    = 30 * time.Minute
	DefaultSweepInterval = time.Minute

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins holds normalized origins (or "*") allowed to reach the
	// HTTP and WebSocket surfaces. Empty means same-host only.
	AllowedOrigins []string

	// StaticDocument is the path of the single HTML document served at "/".
	// Empty disables static serving.
	StaticDocument string

	// SessionTTL is the absolute maximum age of a session; SweepInterval is how
	// often the expiry sweep runs. MaxSessions <= 0 means unlimited.
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxSessions   int

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	logFormatDefault := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(modeDefault))
	logLevelDefault := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(modeDefault))

	fs := flag.NewFlagSet("castlet-signal-relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	listenAddrFlag := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "TCP listen address (host:port)")
	modeFlag := fs.String("mode", modeDefault, "runtime mode: dev or prod")
	staticDocFlag := fs.String("static-document", envOrDefault(lookup, envVarStaticDocument, ""), "path of the HTML document served at / (empty disables)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(logFormatDefault)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(logLevelDefault)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(envOrDefault(lookup, envVarAllowedOrigins, ""))
	if err != nil {
		return Config{}, err
	}

	sessionTTL, err := envDurationOrDefault(lookup, envVarSessionTTL, DefaultSessionTTL)
	if err != nil {
		return Config{}, err
	}
	if sessionTTL <= 0 {
		return Config{}, fmt.Errorf("invalid %s %s: must be positive", envVarSessionTTL, sessionTTL)
	}

	sweepInterval, err := envDurationOrDefault(lookup, envVarSweepInterval, DefaultSweepInterval)
	if err != nil {
		return Config{}, err
	}
	if sweepInterval <= 0 {
		return Config{}, fmt.Errorf("invalid %s %s: must be positive", envVarSweepInterval, sweepInterval)
	}

	maxSessions, err := envIntOrDefault(lookup, envVarMaxSessions, 0)
	if err != nil {
		return Config{}, err
	}

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	if wsIdleTimeout > 0 && wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			envVarSignalingWSPingInterval, wsPingInterval, envVarSignalingWSIdleTimeout, wsIdleTimeout)
	}

	maxMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must be positive", envVarMaxSignalingMessageBytes, maxMessageBytes)
	}

	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	if maxMessagesPerSecond < 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must be >= 0", envVarMaxSignalingMessagesPerSecond, maxMessagesPerSecond)
	}

	return Config{
		ListenAddr:      *listenAddrFlag,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  allowedOrigins,
		StaticDocument:  strings.TrimSpace(*staticDocFlag),

		SessionTTL:    sessionTTL,
		SweepInterval: sweepInterval,
		MaxSessions:   maxSessions,

		SignalingWSIdleTimeout:  wsIdleTimeout,
		SignalingWSPingInterval: wsPingInterval,

		MaxSignalingMessageBytes:      int64(maxMessageBytes),
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var out []string
	for _, part := range strings.Split(trimmed, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q (expected scheme://host[:port] or *)", envVarAllowedOrigins, entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}
