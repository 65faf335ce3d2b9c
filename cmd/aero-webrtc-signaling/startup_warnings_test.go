package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
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
	return slog.New(h), func() []recordedLog {
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
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
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
	return &recordingHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) []string {
	var codes []string
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func hasWarning(records []recordedLog, code string) bool {
	for _, c := range warningCodes(records) {
		if c == code {
			return true
		}
	}
	return false
}

func safeProdConfig() config.Config {
	return config.Config{
		Mode:                     config.ModeProd,
		AllowedOrigins:           []string{"https://game.example.com"},
		MaxPeers:                 config.DefaultMaxPeers,
		MaxLobbies:               config.DefaultMaxLobbies,
		JoinGracePeriod:          config.DefaultJoinGracePeriod,
		MaxSignalingMessageBytes: config.DefaultMaxSignalingMessageBytes,
	}
}

func TestStartupSecurityWarnings_SafeConfigIsQuiet(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, safeProdConfig())

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("unexpected warnings: %v", codes)
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := safeProdConfig()
	cfg.Mode = config.ModeDev
	cfg.AllowedOrigins = []string{"*"}

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "allowed_origins_wildcard") {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_JoinGraceDisabledInProd(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := safeProdConfig()
	cfg.JoinGracePeriod = 0

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "join_grace_disabled_in_prod") {
		t.Fatalf("expected warning_code=join_grace_disabled_in_prod, got %#v", records())
	}
}

func TestStartupSecurityWarnings_JoinGraceDisabledInDevIsQuiet(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := safeProdConfig()
	cfg.Mode = config.ModeDev
	cfg.JoinGracePeriod = 0

	logStartupSecurityWarnings(logger, cfg)

	if hasWarning(records(), "join_grace_disabled_in_prod") {
		t.Fatalf("unexpected join grace warning in dev mode: %#v", records())
	}
}

func TestStartupSecurityWarnings_MaxPeersUnlimitedInProd(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := safeProdConfig()
	cfg.MaxPeers = 0

	logStartupSecurityWarnings(logger, cfg)

	for _, r := range records() {
		if r.attrs["warning_code"] != "max_peers_unlimited_in_prod" {
			continue
		}
		if r.attrs["max_peers"] != int64(0) {
			t.Fatalf("max_peers attr = %#v, want 0", r.attrs["max_peers"])
		}
		return
	}
	t.Fatalf("expected warning_code=max_peers_unlimited_in_prod, got %#v", records())
}

func TestStartupSecurityWarnings_LargeSignalingMessages(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := safeProdConfig()
	cfg.MaxSignalingMessageBytes = 4 << 20

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "signaling_message_max_large") {
		t.Fatalf("expected warning_code=signaling_message_max_large, got %#v", records())
	}
}
