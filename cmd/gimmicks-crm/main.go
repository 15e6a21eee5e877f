// Command gimmicks-crm runs the WhatsApp lead-qualification engine and its
// HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/api"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/flow"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/genai"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/lockfile"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/messaging"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/metrics"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/quote"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/scheduler"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/twiliowhatsapp"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/whatsapp"
)

func main() {
	loadDotEnv()
	initializeLogger(parseLogLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], loadEnvironmentConfig())
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	initializeLogger(parseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping gimmicks-crm", "transport", cfg.Transport, "strategy", cfg.Strategy, "api_addr", cfg.APIAddr)
	if err := run(ctx, cfg); err != nil {
		slog.Error("gimmicks-crm failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("gimmicks-crm exited successfully")
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.New(buildStoreOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	m := metrics.NewMetrics()

	strategies, err := buildStrategies(cfg)
	if err != nil {
		return err
	}
	vocab, err := flow.VocabularyByName(cfg.Vocabulary)
	if err != nil {
		return err
	}

	service, webhook, err := buildMessagingService(ctx, cfg)
	if err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	engine := flow.NewEngine(st, service, quote.NewGenerator(st, st), strategies,
		flow.WithVocabulary(vocab),
		flow.WithSendTimeout(cfg.SendTimeout),
		flow.WithIOTimeout(cfg.IOTimeout),
		flow.WithMetrics(m),
	)

	dispatcher := messaging.NewDispatcher(service, engine, cfg.MaxConcurrent)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(ctx)
	}()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.DedupPruneSchedule, scheduler.PruneDedupJob(st, cfg.DedupRetention, cfg.IOTimeout, time.Now)); err != nil {
		return err
	}

	apiOpts := []api.Option{api.WithAddr(cfg.APIAddr), api.WithMetrics(m)}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(webhook))
	}
	server := api.NewServer(st, engine, apiOpts...)
	serveErr := server.Start(ctx)
	cancel()

	// In-flight turns still send replies, so the transport stops last.
	<-dispatched
	if err := service.Stop(); err != nil {
		slog.Warn("run: messaging service stop failed", "error", err)
	}
	return serveErr
}

func buildStrategies(cfg Config) (*flow.Strategies, error) {
	list := []flow.ConversationStrategy{flow.NewStateMachine(nil)}
	if cfg.OpenAIKey != "" {
		llm, err := genai.NewClient(buildGenAIOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		list = append(list, flow.NewGenAIStrategy(llm))
	}
	strategies := flow.NewStrategies(list...)
	if err := strategies.SetDefault(cfg.Strategy); err != nil {
		return nil, err
	}
	return strategies, nil
}

// buildMessagingService connects the configured transport. Only Twilio
// returns a webhook handler.
func buildMessagingService(ctx context.Context, cfg Config) (messaging.Service, http.HandlerFunc, error) {
	switch cfg.Transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		service := messaging.NewTwilioService(client)
		return service, service.TwilioWebhookHandler, nil
	case TransportNone:
		slog.Warn("buildMessagingService: no transport configured, replies are only recorded in memory")
		return messaging.NewWhatsAppService(whatsapp.NewMockClient()), nil, nil
	default:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}
