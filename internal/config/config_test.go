package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(func(string) (string, bool) { return "", false }, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.MaxPeers != DefaultMaxPeers {
		t.Fatalf("MaxPeers=%d, want %d", cfg.MaxPeers, DefaultMaxPeers)
	}
	if cfg.MaxLobbies != DefaultMaxLobbies {
		t.Fatalf("MaxLobbies=%d, want %d", cfg.MaxLobbies, DefaultMaxLobbies)
	}
	if cfg.LobbySecretLength != DefaultLobbySecretLength {
		t.Fatalf("LobbySecretLength=%d, want %d", cfg.LobbySecretLength, DefaultLobbySecretLength)
	}
	if cfg.JoinGracePeriod != time.Second {
		t.Fatalf("JoinGracePeriod=%v, want %v", cfg.JoinGracePeriod, time.Second)
	}
	if cfg.SignalingWSPingInterval != 10*time.Second {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, 10*time.Second)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout {
		t.Fatalf("SignalingWSIdleTimeout=%v, want %v", cfg.SignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.SignalingSendQueueLength != DefaultSignalingSendQueueLength {
		t.Fatalf("SignalingSendQueueLength=%d, want %d", cfg.SignalingSendQueueLength, DefaultSignalingSendQueueLength)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("Redis.Enabled()=true, want false")
	}
	if cfg.Redis.EventsQueue != DefaultRedisEventsQueue {
		t.Fatalf("Redis.EventsQueue=%q, want %q", cfg.Redis.EventsQueue, DefaultRedisEventsQueue)
	}
	if cfg.ICEConfigError() != nil {
		t.Fatalf("ICEConfigError=%v, want nil", cfg.ICEConfigError())
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(func(string) (string, bool) { return "", false }, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(func(string) (string, bool) { return "", false }, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestCapacity_EnvOverride(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMaxPeers:          "10",
		envVarMaxLobbies:        "2",
		envVarLobbySecretLength: "32",
		envVarJoinGracePeriod:   "0",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPeers != 10 {
		t.Fatalf("MaxPeers=%d, want 10", cfg.MaxPeers)
	}
	if cfg.MaxLobbies != 2 {
		t.Fatalf("MaxLobbies=%d, want 2", cfg.MaxLobbies)
	}
	if cfg.LobbySecretLength != 32 {
		t.Fatalf("LobbySecretLength=%d, want 32", cfg.LobbySecretLength)
	}
	if cfg.JoinGracePeriod != 0 {
		t.Fatalf("JoinGracePeriod=%v, want 0", cfg.JoinGracePeriod)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMaxPeers: "10",
	}), []string{"--max-peers", "20", "--listen-addr", "0.0.0.0:9999"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPeers != 20 {
		t.Fatalf("MaxPeers=%d, want 20", cfg.MaxPeers)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, "0.0.0.0:9999")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"max peers zero", map[string]string{envVarMaxPeers: "0"}, envVarMaxPeers},
		{"max lobbies negative", map[string]string{envVarMaxLobbies: "-1"}, envVarMaxLobbies},
		{"secret too short", map[string]string{envVarLobbySecretLength: "8"}, envVarLobbySecretLength},
		{"secret too long", map[string]string{envVarLobbySecretLength: "33"}, envVarLobbySecretLength},
		{"negative grace", map[string]string{envVarJoinGracePeriod: "-1s"}, envVarJoinGracePeriod},
		{"ping not below idle", map[string]string{
			envVarSignalingWSPingInterval: "30s",
			envVarSignalingWSIdleTimeout:  "30s",
		}, envVarSignalingWSPingInterval},
		{"message bytes zero", map[string]string{envVarMaxSignalingMessageBytes: "0"}, envVarMaxSignalingMessageBytes},
		{"rate zero", map[string]string{envVarMaxSignalingMessagesPerSecond: "0"}, envVarMaxSignalingMessagesPerSecond},
		{"send queue zero", map[string]string{envVarSignalingSendQueueLength: "0"}, envVarSignalingSendQueueLength},
		{"events buffer zero", map[string]string{envVarEventsBufferSize: "0"}, envVarEventsBufferSize},
		{"bad duration", map[string]string{envVarJoinGracePeriod: "soon"}, envVarJoinGracePeriod},
		{"bad int", map[string]string{envVarMaxPeers: "many"}, envVarMaxPeers},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), nil)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestInvalidMode(t *testing.T) {
	if _, err := load(lookupMap(map[string]string{envVarMode: "staging"}), nil); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestRedisConfig(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarRedisAddr:        " localhost:6379 ",
		envVarRedisDB:          "3",
		envVarRedisEventsQueue: "lobby_events",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Redis.Enabled() {
		t.Fatalf("Redis.Enabled()=false, want true")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("Redis.Addr=%q, want %q", cfg.Redis.Addr, "localhost:6379")
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("Redis.DB=%d, want 3", cfg.Redis.DB)
	}
	if cfg.Redis.EventsQueue != "lobby_events" {
		t.Fatalf("Redis.EventsQueue=%q, want %q", cfg.Redis.EventsQueue, "lobby_events")
	}
}

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if _, err := NewLogger(Config{LogFormat: LogFormatJSON}); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (%v)", len(got), got)
	}
	if got[0] != "https://example.com" {
		t.Fatalf("got[0]=%q, want %q", got[0], "https://example.com")
	}
	if got[1] != "http://localhost:5173" {
		t.Fatalf("got[1]=%q, want %q", got[1], "http://localhost:5173")
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	cases := []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
	}
	for _, raw := range cases {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}
