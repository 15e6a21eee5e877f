package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/api"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/flow"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/genai"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/messaging"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/scheduler"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/twiliowhatsapp"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/util"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and the default SQLite databases.
	DefaultStateDir = "/var/lib/gimmicks-crm"
	// DefaultDBFileName is the CRM database used when DATABASE_URL is unset.
	DefaultDBFileName = "crm.db"
	// DefaultWhatsAppDBFileName is the whatsmeow session database.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Transports.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
	TransportNone     = "none"
)

// Config is the process configuration, read from the environment and then
// overridden by flags.
type Config struct {
	StateDir      string
	DatabaseURL   string
	WhatsAppDSN   string
	OpenAIKey     string
	OpenAIModel   string
	GenAIDebug    bool
	APIAddr       string
	Transport     string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	Strategy      string
	Vocabulary    string
	SendTimeout   time.Duration
	IOTimeout     time.Duration
	MaxConcurrent int
	LogLevel      string
	QROutput      string
	NumericCode   bool

	DedupPruneSchedule string
	DedupRetention     time.Duration
}

// loadDotEnv loads a .env file when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
}

// loadEnvironmentConfig reads the configuration from environment variables.
func loadEnvironmentConfig() Config {
	cfg := Config{
		StateDir:      os.Getenv("CRM_STATE_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		GenAIDebug:    util.ParseBoolEnv("GENAI_DEBUG", false),
		APIAddr:       os.Getenv("API_ADDR"),
		Transport:     strings.ToLower(os.Getenv("TRANSPORT")),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		Strategy:      os.Getenv("CONVERSATION_STRATEGY"),
		Vocabulary:    os.Getenv("FUNNEL_VOCABULARY"),
		SendTimeout:   util.ParseDurationEnv("SEND_TIMEOUT", flow.DefaultSendTimeout),
		IOTimeout:     util.ParseDurationEnv("IO_TIMEOUT", flow.DefaultIOTimeout),
		MaxConcurrent: util.ParseIntEnv("MAX_CONCURRENT_CONVERSATIONS", messaging.DefaultMaxConcurrent),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		QROutput:      os.Getenv("QR_OUTPUT"),
		NumericCode:   util.ParseBoolEnv("NUMERIC_CODE", false),

		DedupPruneSchedule: os.Getenv("DEDUP_PRUNE_SCHEDULE"),
		DedupRetention:     util.ParseDurationEnv("DEDUP_RETENTION", scheduler.DefaultDedupRetention),
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = api.DefaultAddr
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportWhatsApp
	}
	if cfg.Strategy == "" {
		cfg.Strategy = flow.StrategyKeyword
	}
	if cfg.DedupPruneSchedule == "" {
		cfg.DedupPruneSchedule = scheduler.DefaultDedupPruneSchedule
	}

	slog.Debug("environment variables loaded",
		"CRM_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", cfg.WhatsAppDSN != "",
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"API_ADDR", cfg.APIAddr,
		"TRANSPORT", cfg.Transport,
		"CONVERSATION_STRATEGY", cfg.Strategy,
		"FUNNEL_VOCABULARY", cfg.Vocabulary)
	return cfg
}

// parseCommandLineFlags applies flag overrides on top of cfg.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, cfg Config) (Config, error) {
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory (overrides $CRM_STATE_DIR)")
	fs.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "CRM database DSN (overrides $DATABASE_URL)")
	fs.StringVar(&cfg.WhatsAppDSN, "whatsapp-db-dsn", cfg.WhatsAppDSN, "whatsmeow session DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&cfg.OpenAIKey, "openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", cfg.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "whatsapp, twilio or none (overrides $TRANSPORT)")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "strategy for new conversations (overrides $CONVERSATION_STRATEGY)")
	fs.StringVar(&cfg.Vocabulary, "funnel-vocabulary", cfg.Vocabulary, "pipeline or production (overrides $FUNNEL_VOCABULARY)")
	fs.DurationVar(&cfg.SendTimeout, "send-timeout", cfg.SendTimeout, "outbound send timeout (overrides $SEND_TIMEOUT)")
	fs.DurationVar(&cfg.IOTimeout, "io-timeout", cfg.IOTimeout, "catalog, quote and model call timeout (overrides $IO_TIMEOUT)")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "concurrently handled conversations (overrides $MAX_CONCURRENT_CONVERSATIONS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.StringVar(&cfg.QROutput, "qr-output", cfg.QROutput, "path to write login QR code")
	fs.BoolVar(&cfg.NumericCode, "numeric-code", cfg.NumericCode, "use numeric login code instead of QR code")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Transport {
	case TransportWhatsApp, TransportTwilio, TransportNone:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if _, err := flow.VocabularyByName(c.Vocabulary); err != nil {
		return err
	}
	if c.Strategy == flow.StrategyGenAI && c.OpenAIKey == "" {
		return fmt.Errorf("conversation strategy %q requires OPENAI_API_KEY", c.Strategy)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent conversations must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}

// appDSN is the CRM database, defaulting to SQLite in the state directory.
func (c Config) appDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// sessionDSN is the whatsmeow session database. A Postgres DATABASE_URL is
// shared; otherwise the session gets its own SQLite file.
func (c Config) sessionDSN() string {
	if c.WhatsAppDSN != "" {
		return c.WhatsAppDSN
	}
	if c.DatabaseURL != "" && store.DetectDSNType(c.DatabaseURL) == "postgres" {
		return c.DatabaseURL
	}
	return "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// initializeLogger installs the structured text logger.
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(cfg Config) []store.Option {
	dsn := cfg.appDSN()
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(cfg Config) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.sessionDSN())}
	if cfg.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.QROutput))
	}
	if cfg.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(cfg Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if cfg.TwilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(cfg.TwilioSID))
	}
	if cfg.TwilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(cfg.TwilioToken))
	}
	if cfg.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(cfg.TwilioFrom))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(cfg Config) []genai.Option {
	genaiOpts := []genai.Option{genai.WithAPIKey(cfg.OpenAIKey)}
	if cfg.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(cfg.OpenAIModel))
	}
	if cfg.GenAIDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true, cfg.StateDir))
	}
	return genaiOpts
}
