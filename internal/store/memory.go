package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore is a map-backed Store for tests and local development.
type InMemoryStore struct {
	mu          sync.RWMutex
	states      map[string]*models.ConversationState
	leads       map[string]*models.Lead
	quotes      []models.Quote
	products    []models.Product
	transcripts map[string][]models.TranscriptMessage
	dedup       map[string]DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:      make(map[string]*models.ConversationState),
		leads:       make(map[string]*models.Lead),
		transcripts: make(map[string][]models.TranscriptMessage),
		dedup:       make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) GetConversationState(ctx context.Context, phone string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) PutConversationState(ctx context.Context, state *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.PhoneNumber] = state.Clone()
	slog.Debug("InMemoryStore.PutConversationState: saved", "phone", state.PhoneNumber, "step", state.CurrentStep)
	return nil
}

func (s *InMemoryStore) GetLead(ctx context.Context, phone string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[phone]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *InMemoryStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.PhoneNumber]; exists {
		return ErrDuplicate
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	cp := *lead
	s.leads[lead.PhoneNumber] = &cp
	return nil
}

func (s *InMemoryStore) UpsertLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.leads[lead.PhoneNumber]; ok {
		lead.ID = existing.ID
		lead.CreatedAt = existing.CreatedAt
	} else if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	cp := *lead
	s.leads[lead.PhoneNumber] = &cp
	return nil
}

func (s *InMemoryStore) ListLeads(ctx context.Context, filter models.LeadFilter) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Lead
	for _, l := range s.leads {
		if filter.Matches(*l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateQuote(ctx context.Context, quote *models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quote.ID == "" {
		quote.ID = uuid.NewString()
	}
	cp := *quote
	cp.Items = append([]models.QuoteItem(nil), quote.Items...)
	s.quotes = append(s.quotes, cp)
	return nil
}

func (s *InMemoryStore) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quotes {
		if q.ID == id {
			cp := q
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListQuotes(ctx context.Context, status string) ([]models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Quote
	for _, q := range s.quotes {
		if status == "" || q.Status == status {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindProductsByCode(ctx context.Context, codes []string) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Product
	for _, code := range codes {
		c := normalizeCode(code)
		if c == "" {
			continue
		}
		for _, p := range s.products {
			if strings.HasPrefix(normalizeCode(p.Code), c) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindProductsByKeyword(ctx context.Context, keyword string, limit int) ([]models.Product, error) {
	words := keywordWords(keyword)
	if len(words) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Product
	for _, p := range s.products {
		if limit > 0 && len(out) >= limit {
			break
		}
		if productMatchesWords(p, words) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SampleProducts(ctx context.Context, limit int) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.products) {
		limit = len(s.products)
	}
	return append([]models.Product(nil), s.products[:limit]...), nil
}

func (s *InMemoryStore) AddProduct(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if normalizeCode(existing.Code) == normalizeCode(p.Code) {
			return ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.products = append(s.products, *p)
	return nil
}

func (s *InMemoryStore) AddTranscriptMessage(ctx context.Context, m models.TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[m.ConversationID] = append(s.transcripts[m.ConversationID], m)
	return nil
}

func (s *InMemoryStore) RecentTranscript(ctx context.Context, conversationID string, limit int) ([]models.TranscriptMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.transcripts[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.TranscriptMessage(nil), msgs...), nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.dedup[messageID]; seen {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, PhoneNumber: phone, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
