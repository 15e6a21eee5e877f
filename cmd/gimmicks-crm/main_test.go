package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/api"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/flow"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/messaging"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/scheduler"
)

var configEnv = []string{
	"CRM_STATE_DIR", "DATABASE_URL", "WHATSAPP_DB_DSN", "OPENAI_API_KEY", "OPENAI_MODEL",
	"API_ADDR", "TRANSPORT", "CONVERSATION_STRATEGY", "FUNNEL_VOCABULARY", "SEND_TIMEOUT",
	"IO_TIMEOUT", "MAX_CONCURRENT_CONVERSATIONS", "DEDUP_PRUNE_SCHEDULE", "DEDUP_RETENTION",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg := loadEnvironmentConfig()

	if cfg.StateDir != DefaultStateDir || cfg.APIAddr != api.DefaultAddr || cfg.Transport != TransportWhatsApp {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Strategy != flow.StrategyKeyword || cfg.MaxConcurrent != messaging.DefaultMaxConcurrent {
		t.Errorf("unexpected engine defaults: %+v", cfg)
	}
	if cfg.SendTimeout != flow.DefaultSendTimeout || cfg.IOTimeout != flow.DefaultIOTimeout {
		t.Errorf("unexpected timeouts: send=%v io=%v", cfg.SendTimeout, cfg.IOTimeout)
	}
	if cfg.DedupPruneSchedule != scheduler.DefaultDedupPruneSchedule || cfg.DedupRetention != scheduler.DefaultDedupRetention {
		t.Errorf("unexpected dedup retention defaults: %+v", cfg)
	}
	if got, want := cfg.appDSN(), filepath.Join(DefaultStateDir, DefaultDBFileName); got != want {
		t.Errorf("appDSN = %q, want %q", got, want)
	}
	if got, want := cfg.sessionDSN(), "file:"+filepath.Join(DefaultStateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on"; got != want {
		t.Errorf("sessionDSN = %q, want %q", got, want)
	}
}

func TestLoadEnvironmentConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "Twilio")
	t.Setenv("SEND_TIMEOUT", "5s")
	t.Setenv("IO_TIMEOUT", "45")
	t.Setenv("MAX_CONCURRENT_CONVERSATIONS", "4")
	t.Setenv("DATABASE_URL", "postgres://crm:secret@db/crm")

	cfg := loadEnvironmentConfig()
	if cfg.Transport != TransportTwilio || cfg.SendTimeout != 5*time.Second || cfg.IOTimeout != 45*time.Second || cfg.MaxConcurrent != 4 {
		t.Errorf("environment not applied: %+v", cfg)
	}
	// whatsmeow shares a Postgres database with the CRM
	if cfg.sessionDSN() != cfg.DatabaseURL || cfg.appDSN() != cfg.DatabaseURL {
		t.Errorf("postgres DSN should serve both stores: app=%q session=%q", cfg.appDSN(), cfg.sessionDSN())
	}
}

func TestSQLiteDatabaseURLKeepsSeparateSession(t *testing.T) {
	cfg := Config{StateDir: "/data", DatabaseURL: "/data/other.db"}
	if strings.Contains(cfg.sessionDSN(), "other.db") {
		t.Errorf("a SQLite CRM database must not be reused for the session: %q", cfg.sessionDSN())
	}
}

func TestParseCommandLineFlags(t *testing.T) {
	clearEnv(t)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := parseCommandLineFlags(fs, []string{"-transport", "none", "-api-addr", ":9090", "-send-timeout", "3s", "-funnel-vocabulary", "production"}, loadEnvironmentConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transport != TransportNone || cfg.APIAddr != ":9090" || cfg.SendTimeout != 3*time.Second || cfg.Vocabulary != "production" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	base := Config{Transport: TransportNone, Strategy: flow.StrategyKeyword, MaxConcurrent: 1}
	tests := map[string]func(*Config){
		"transport":   func(c *Config) { c.Transport = "carrier-pigeon" },
		"vocabulary":  func(c *Config) { c.Vocabulary = "kanban" },
		"genai key":   func(c *Config) { c.Strategy = flow.StrategyGenAI },
		"concurrency": func(c *Config) { c.MaxConcurrent = 0 },
	}
	if err := base.validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	for name, mutate := range tests {
		cfg := base
		mutate(&cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelDebug,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildStrategiesWithoutGenAI(t *testing.T) {
	strategies, err := buildStrategies(Config{Strategy: flow.StrategyKeyword})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategies.Default() != flow.StrategyKeyword {
		t.Errorf("unexpected default strategy %q", strategies.Default())
	}
	if _, err := buildStrategies(Config{Strategy: flow.StrategyGenAI}); err == nil {
		t.Error("genai strategy must not be selectable without a client")
	}
}

func TestRunWithoutTransport(t *testing.T) {
	cfg := Config{
		StateDir:           t.TempDir(),
		APIAddr:            "127.0.0.1:0",
		Transport:          TransportNone,
		Strategy:           flow.StrategyKeyword,
		SendTimeout:        time.Second,
		IOTimeout:          time.Second,
		MaxConcurrent:      2,
		DedupPruneSchedule: scheduler.DefaultDedupPruneSchedule,
		DedupRetention:     time.Hour,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not shut down")
	}
}
