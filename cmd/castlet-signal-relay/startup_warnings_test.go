package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/castlet/signal-relay/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func warningCodes(records []recordedLog) []string {
	var out []string
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out = append(out, code)
		}
	}
	return out
}

func hasWarning(records []recordedLog, code string) bool {
	for _, c := range warningCodes(records) {
		if c == code {
			return true
		}
	}
	return false
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeDev,
		AllowedOrigins:                []string{"*"},
		SessionTTL:                    config.DefaultSessionTTL,
		MaxSignalingMessageBytes:      config.DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: config.DefaultMaxSignalingMessagesPerSecond,
	}

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "allowed_origins_wildcard") {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %v", warningCodes(records()))
	}
}

func TestStartupSecurityWarnings_UnlimitedSessionsInProd(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeProd,
		SessionTTL:                    config.DefaultSessionTTL,
		MaxSignalingMessageBytes:      config.DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: config.DefaultMaxSignalingMessagesPerSecond,
	}

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "max_sessions_unlimited_in_prod") {
		t.Fatalf("expected warning_code=max_sessions_unlimited_in_prod, got %v", warningCodes(records()))
	}

	// Dev mode tolerates unlimited sessions.
	logger2, records2 := newRecordingLogger()
	cfg.Mode = config.ModeDev
	logStartupSecurityWarnings(logger2, cfg)
	if hasWarning(records2(), "max_sessions_unlimited_in_prod") {
		t.Fatal("dev mode warned about unlimited sessions")
	}
}

func TestStartupSecurityWarnings_LargeKnobs(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeDev,
		MaxSessions:                   100,
		SessionTTL:                    48 * time.Hour,
		MaxSignalingMessageBytes:      8 << 20,
		MaxSignalingMessagesPerSecond: 0,
	}

	logStartupSecurityWarnings(logger, cfg)

	for _, code := range []string{
		"session_ttl_large",
		"max_signaling_message_large",
		"signaling_rate_limit_disabled",
	} {
		if !hasWarning(records(), code) {
			t.Errorf("expected warning_code=%s, got %v", code, warningCodes(records()))
		}
	}
}

func TestStartupSecurityWarnings_QuietOnSaneConfig(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeProd,
		AllowedOrigins:                []string{"https://app.example.com"},
		MaxSessions:                   500,
		SessionTTL:                    config.DefaultSessionTTL,
		MaxSignalingMessageBytes:      config.DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: config.DefaultMaxSignalingMessagesPerSecond,
	}

	logStartupSecurityWarnings(logger, cfg)

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("expected no warnings, got %v", codes)
	}
}
