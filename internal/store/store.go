// Package store provides storage backends for the Gimmicks CRM.
//
// It includes an in-memory store for tests and development, and SQLite and
// PostgreSQL stores for persistent deployments.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a record with the same unique key already exists.
var ErrDuplicate = errors.New("record already exists")

// ConversationStore persists the per-phone dialogue state.
type ConversationStore interface {
	// GetConversationState returns nil, nil when the phone has no state yet.
	GetConversationState(ctx context.Context, phone string) (*models.ConversationState, error)
	PutConversationState(ctx context.Context, state *models.ConversationState) error
}

// LeadStore persists CRM leads.
type LeadStore interface {
	// GetLead returns nil, nil when the phone has no lead yet.
	GetLead(ctx context.Context, phone string) (*models.Lead, error)
	CreateLead(ctx context.Context, lead *models.Lead) error
	UpsertLead(ctx context.Context, lead *models.Lead) error
	ListLeads(ctx context.Context, filter models.LeadFilter) ([]models.Lead, error)
}

// QuoteStore persists generated quotes.
type QuoteStore interface {
	CreateQuote(ctx context.Context, quote *models.Quote) error
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	ListQuotes(ctx context.Context, status string) ([]models.Quote, error)
}

// CatalogReader is the read-only catalog lookup used by the dialogue core.
type CatalogReader interface {
	// FindProductsByCode returns the first product whose code starts with each
	// given code, case-insensitively, in the order of the codes.
	FindProductsByCode(ctx context.Context, codes []string) ([]models.Product, error)
	// FindProductsByKeyword matches any word of keyword against name,
	// description and categories.
	FindProductsByKeyword(ctx context.Context, keyword string, limit int) ([]models.Product, error)
	// SampleProducts returns an arbitrary small slice of the catalog.
	SampleProducts(ctx context.Context, limit int) ([]models.Product, error)
}

// CatalogStore adds catalog maintenance to CatalogReader.
type CatalogStore interface {
	CatalogReader
	AddProduct(ctx context.Context, p *models.Product) error
}

// TranscriptStore keeps the message history of conversations.
type TranscriptStore interface {
	AddTranscriptMessage(ctx context.Context, m models.TranscriptMessage) error
	// RecentTranscript returns up to limit messages, oldest first.
	RecentTranscript(ctx context.Context, conversationID string, limit int) ([]models.TranscriptMessage, error)
}

// Store is the full persistence surface of the CRM.
type Store interface {
	ConversationStore
	LeadStore
	QuoteStore
	CatalogStore
	TranscriptStore
	DedupRepo
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN        string // database connection string
	DriverType string // "sqlite" or "postgres"; empty selects the in-memory store
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.DriverType = "sqlite"
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.DriverType = "postgres"
	}
}

// New creates the store selected by the options, defaulting to in-memory.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.DriverType {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite":
		return NewSQLiteStore(opts...)
	default:
		slog.Warn("store.New: no database configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
