package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/messaging"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/metrics"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Server serves the CRM HTTP API.
type Server struct {
	store   store.Store
	inbound messaging.InboundHandler
	webhook http.HandlerFunc
	metrics *metrics.Metrics
	addr    string
	now     func() time.Time
	http    *http.Server
	wg      sync.WaitGroup
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr    string
	Webhook http.HandlerFunc
	Metrics *metrics.Metrics
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioWebhook mounts the Twilio inbound webhook at /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.Webhook = h }
}

// WithMetrics exposes m at /metrics and counts requests on it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// NewServer creates the API server over the store and the inbound handler.
func NewServer(st store.Store, inbound messaging.InboundHandler, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		store:   st,
		inbound: inbound,
		webhook: cfg.Webhook,
		metrics: cfg.Metrics,
		addr:    cfg.Addr,
		now:     time.Now,
	}
}

// Router builds the chi router with every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if s.webhook != nil {
		r.Post("/webhook/twilio", s.webhook)
	}
	r.Post("/messages/inbound", s.inboundHandler)
	r.Get("/leads", s.listLeadsHandler)
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", s.listQuotesHandler)
		r.Get("/{id}", s.getQuoteHandler)
	})
	r.Get("/conversations/{phone}/state", s.conversationStateHandler)
	r.Post("/products", s.createProductHandler)
	return r
}

// requestLogger logs each request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, status)
		slog.Debug("Server.requestLogger: request served", "method", r.Method, "route", route, "status", status, "duration", time.Since(start))
	})
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Start: shutting down")
		err := s.http.Shutdown(shutdownCtx)
		s.Wait()
		return err
	}
}

// Wait blocks until every accepted inbound message has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}
