package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/metrics"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/google/uuid"
)

// Default timeouts of outbound sends and of catalog, quote and model calls.
const (
	DefaultSendTimeout = 15 * time.Second
	DefaultIOTimeout   = 30 * time.Second
)

// historyLimit is the number of transcript lines handed to strategies.
const historyLimit = 8

// Customer-facing texts of the engine itself.
const (
	ApologyMessage  = "Disculpa, tuve un inconveniente. Un asesor te contactará pronto."
	CourtesyMessage = "¡Gracias por tu mensaje! Ana María, nuestra asesora, ya tiene tu caso y te contactará pronto."
)

// Sender delivers one outbound text. messaging.Service satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// Quoter prices collected data and persists the quote. *quote.Generator
// satisfies it.
type Quoter interface {
	Generate(ctx context.Context, phone, conversationID string, data models.CollectedData) (string, models.Quote, error)
}

// EngineStore is the persistence the engine needs.
type EngineStore interface {
	store.ConversationStore
	store.LeadStore
	store.CatalogReader
	store.TranscriptStore
	store.DedupRepo
}

// Engine runs one inbound message through the dialogue and its side effects.
type Engine struct {
	store       EngineStore
	sender      Sender
	quoter      Quoter
	strategies  *Strategies
	vocab       Vocabulary
	locks       *KeyedMutex
	metrics     *metrics.Metrics
	sendTimeout time.Duration
	ioTimeout   time.Duration
	now         func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithVocabulary selects the funnel vocabulary used to classify leads.
func WithVocabulary(v Vocabulary) EngineOption {
	return func(e *Engine) { e.vocab = v }
}

// WithSendTimeout bounds every outbound send.
func WithSendTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.sendTimeout = d
		}
	}
}

// WithIOTimeout bounds catalog lookups, quote generation and model calls.
func WithIOTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.ioTimeout = d
		}
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. strategies must hold at least one strategy.
func NewEngine(st EngineStore, sender Sender, quoter Quoter, strategies *Strategies, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       st,
		sender:      sender,
		quoter:      quoter,
		strategies:  strategies,
		vocab:       PipelineVocabulary,
		locks:       NewKeyedMutex(),
		sendTimeout: DefaultSendTimeout,
		ioTimeout:   DefaultIOTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turnContext carries what the failure path needs to reach the customer.
type turnContext struct {
	phone          string
	conversationID string
}

// HandleInboundMessage processes msg end to end. It never returns an error
// or panics: failures are logged and answered with an apology.
func (e *Engine) HandleInboundMessage(ctx context.Context, msg models.InboundMessage) {
	start := e.now()
	defer e.metrics.TrackInFlight()()

	phone := strings.TrimSpace(msg.From)
	if phone == "" {
		slog.Warn("Engine.HandleInboundMessage: message without sender ignored", "message_id", msg.MessageID)
		e.metrics.RecordInbound(metrics.InboundIgnored, 0)
		return
	}
	if !msg.IsText() || strings.TrimSpace(msg.Body) == "" {
		slog.Info("Engine.HandleInboundMessage: non-text message ignored", "phone", phone, "type", msg.Type, "message_id", msg.MessageID)
		e.metrics.RecordInbound(metrics.InboundIgnored, 0)
		return
	}

	if msg.MessageID != "" {
		fresh, err := e.store.RecordInbound(ctx, msg.MessageID, phone)
		if err != nil {
			slog.Warn("Engine.HandleInboundMessage: dedup check failed, processing anyway", "phone", phone, "message_id", msg.MessageID, "error", err)
		} else if !fresh {
			slog.Info("Engine.HandleInboundMessage: duplicate message ignored", "phone", phone, "message_id", msg.MessageID)
			e.metrics.RecordInbound(metrics.InboundDuplicate, 0)
			return
		}
	}

	unlock := e.locks.Lock(phone)
	defer unlock()

	tc := &turnContext{phone: phone, conversationID: msg.ConversationID}
	outcome, err := e.safeProcess(ctx, msg, tc)
	if err != nil {
		slog.Error("Engine.HandleInboundMessage: processing failed", "phone", phone, "conversation_id", tc.conversationID, "error", err)
		e.apologize(ctx, tc)
		e.metrics.RecordInbound(metrics.InboundFailed, e.now().Sub(start))
		return
	}

	if msg.MessageID != "" {
		if err := e.store.MarkProcessed(ctx, msg.MessageID); err != nil {
			slog.Warn("Engine.HandleInboundMessage: mark processed failed", "phone", phone, "message_id", msg.MessageID, "error", err)
		}
	}
	e.metrics.RecordInbound(outcome, e.now().Sub(start))
}

func (e *Engine) safeProcess(ctx context.Context, msg models.InboundMessage, tc *turnContext) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.safeProcess: panic recovered", "phone", tc.phone, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()
	return e.process(ctx, msg, tc)
}

func (e *Engine) process(ctx context.Context, msg models.InboundMessage, tc *turnContext) (string, error) {
	now := e.now()

	st, err := e.loadState(ctx, msg, now)
	if err != nil {
		return "", err
	}
	tc.conversationID = st.ConversationID

	lead, err := e.loadLead(ctx, tc.phone, now)
	if err != nil {
		return "", err
	}

	st.MessageCount++
	st.LastInteraction = now
	st.UpdatedAt = now
	lead.LastMessageAt = &now
	lead.UpdatedAt = now

	history, err := e.store.RecentTranscript(ctx, st.ConversationID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load transcript: %w", err)
	}
	if err := e.store.AddTranscriptMessage(ctx, models.TranscriptMessage{
		ConversationID: st.ConversationID,
		PhoneNumber:    tc.phone,
		Sender:         models.SenderUser,
		Body:           msg.Body,
		Time:           now,
	}); err != nil {
		return "", fmt.Errorf("failed to log inbound message: %w", err)
	}

	if NeedsReactivation(lead, e.vocab) {
		Reactivate(lead, st, e.vocab, now)
		e.metrics.RecordReactivation()
		slog.Info("Engine.process: lost lead reactivated", "phone", tc.phone, "conversation_id", st.ConversationID)
	}

	if st.TransferredToHuman {
		return e.handleTransferred(ctx, st, lead)
	}

	if rt := ClassifyIntent(msg.Body); rt != models.RequestGeneral {
		st.SetRequestType(rt)
	}

	strategy := e.strategies.Get(st.Strategy)
	if strategy == nil {
		return "", errors.New("no conversation strategy configured")
	}
	decideCtx, cancel := context.WithTimeout(ctx, e.ioTimeout)
	d, err := strategy.Decide(decideCtx, Turn{
		State:   st.Clone(),
		Message: msg.Body,
		Catalog: e.store,
		History: history,
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("strategy %s failed: %w", strategy.Name(), err)
	}

	applyDecision(st, d)
	slog.Debug("Engine.process: decision", "phone", tc.phone, "strategy", strategy.Name(), "step", st.CurrentStep, "actions", len(d.Actions))

	for _, a := range d.Actions {
		if err := e.execute(ctx, st, a); err != nil {
			return "", err
		}
	}

	if d.LeadQuality != "" && models.IsValidClassification(d.LeadQuality) {
		st.LeadQuality = d.LeadQuality
	} else {
		st.LeadQuality = AssessLeadQuality(st)
	}

	if err := e.saveLead(ctx, st, lead); err != nil {
		return "", err
	}
	if err := e.store.PutConversationState(ctx, st); err != nil {
		return "", fmt.Errorf("failed to save conversation state: %w", err)
	}
	return metrics.InboundProcessed, nil
}

func (e *Engine) loadState(ctx context.Context, msg models.InboundMessage, now time.Time) (*models.ConversationState, error) {
	phone := strings.TrimSpace(msg.From)
	st, err := e.store.GetConversationState(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	if st == nil {
		id := msg.ConversationID
		if id == "" {
			id = uuid.NewString()
		}
		slog.Info("Engine.loadState: new conversation", "phone", phone, "conversation_id", id, "strategy", e.strategies.Default())
		return models.NewConversationState(phone, id, e.strategies.Default(), now), nil
	}
	if msg.ConversationID != "" {
		st.ConversationID = msg.ConversationID
	} else if st.ConversationID == "" {
		st.ConversationID = uuid.NewString()
	}
	if st.Strategy == "" {
		st.Strategy = e.strategies.Default()
	}
	if st.CollectedData == nil {
		st.CollectedData = models.CollectedData{}
	}
	return st, nil
}

func (e *Engine) loadLead(ctx context.Context, phone string, now time.Time) (*models.Lead, error) {
	lead, err := e.store.GetLead(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead != nil {
		return lead, nil
	}
	lead = &models.Lead{
		PhoneNumber:    phone,
		Source:         models.LeadSourceWhatsApp,
		Status:         models.LeadStatusActive,
		FunnelStage:    e.vocab.Initial,
		Classification: models.ClassificationFrio,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateLead(ctx, lead); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create lead: %w", err)
		}
		return e.store.GetLead(ctx, phone)
	}
	slog.Info("Engine.loadLead: lead created", "phone", phone, "lead_id", lead.ID)
	return lead, nil
}

// handleTransferred acknowledges the first message after a handoff and
// stays silent afterwards.
func (e *Engine) handleTransferred(ctx context.Context, st *models.ConversationState, lead *models.Lead) (string, error) {
	outcome := metrics.InboundSilenced
	if !st.CourtesySent {
		if err := e.send(ctx, st, CourtesyMessage); err != nil {
			return "", err
		}
		st.CourtesySent = true
		outcome = metrics.InboundProcessed
	} else {
		slog.Debug("Engine.handleTransferred: conversation with human, not replying", "phone", st.PhoneNumber, "conversation_id", st.ConversationID)
	}
	if err := e.store.UpsertLead(ctx, lead); err != nil {
		return "", fmt.Errorf("failed to save lead: %w", err)
	}
	if err := e.store.PutConversationState(ctx, st); err != nil {
		return "", fmt.Errorf("failed to save conversation state: %w", err)
	}
	return outcome, nil
}

func applyDecision(st *models.ConversationState, d Decision) {
	next := d.NextStep
	if !models.IsValidStep(next) {
		slog.Warn("Engine.applyDecision: invalid next step, restarting at greeting", "phone", st.PhoneNumber, "step", next)
		next = models.StepGreeting
	}
	st.CurrentStep = next
	if d.Data != nil {
		for k, v := range d.Data {
			st.CollectedData.Set(k, v)
		}
	}
	for _, f := range d.Cleared {
		delete(st.CollectedData, f)
	}
	if d.RequestType != nil {
		st.SetRequestType(*d.RequestType)
	}
	st.Category = d.Category
	st.MenuAttempts = d.MenuAttempts
	st.CorrectingField = d.CorrectingField
}

func (e *Engine) execute(ctx context.Context, st *models.ConversationState, a Action) error {
	switch a.Kind {
	case ActionSendText:
		return e.send(ctx, st, a.Text)
	case ActionSendCatalog:
		return e.sendCatalog(ctx, st, a.Keyword)
	case ActionGenerateQuote:
		return e.generateQuote(ctx, st)
	case ActionTransferHuman:
		if a.Text != "" {
			if err := e.send(ctx, st, a.Text); err != nil {
				return err
			}
		}
		st.TransferredToHuman = true
		st.CourtesySent = false
		st.CurrentStep = models.StepTransferHuman
		e.metrics.RecordTransfer()
		slog.Info("Engine.execute: conversation transferred to human", "phone", st.PhoneNumber, "conversation_id", st.ConversationID)
		return nil
	default:
		slog.Warn("Engine.execute: unknown action skipped", "phone", st.PhoneNumber, "kind", a.Kind)
		return nil
	}
}

func (e *Engine) sendCatalog(ctx context.Context, st *models.ConversationState, keyword string) error {
	key := CatalogKey(keyword)
	if st.HasSentCatalog(key) {
		slog.Debug("Engine.sendCatalog: catalog already sent", "phone", st.PhoneNumber, "catalog", key)
		e.metrics.RecordCatalog("suppressed")
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.ioTimeout)
	defer cancel()
	var (
		products []models.Product
		err      error
	)
	if strings.TrimSpace(keyword) == "" {
		products, err = e.store.SampleProducts(lookupCtx, CatalogLimit)
	} else {
		products, err = e.store.FindProductsByKeyword(lookupCtx, keyword, CatalogLimit)
	}
	if err != nil {
		return fmt.Errorf("catalog lookup failed: %w", err)
	}

	if len(products) == 0 {
		slog.Warn("Engine.sendCatalog: no products for catalog", "phone", st.PhoneNumber, "catalog", key)
		e.metrics.RecordCatalog("empty")
		return e.send(ctx, st, CatalogUnavailableMessage)
	}
	if err := e.send(ctx, st, FormatCatalogMessage(products, keyword)); err != nil {
		return err
	}
	st.MarkCatalogSent(key)
	e.metrics.RecordCatalog("sent")
	return nil
}

func (e *Engine) generateQuote(ctx context.Context, st *models.ConversationState) error {
	if st.QuoteGenerated {
		slog.Debug("Engine.generateQuote: quote already generated", "phone", st.PhoneNumber, "conversation_id", st.ConversationID)
		return nil
	}
	quoteCtx, cancel := context.WithTimeout(ctx, e.ioTimeout)
	text, q, err := e.quoter.Generate(quoteCtx, st.PhoneNumber, st.ConversationID, st.CollectedData)
	cancel()
	if err != nil {
		e.metrics.RecordQuote(false)
		return fmt.Errorf("quote generation failed: %w", err)
	}
	e.metrics.RecordQuote(true)
	st.QuoteGenerated = true
	// if the quote send fails the checkpoint already hands the customer to an
	// advisor, so the next message gets the courtesy reply
	checkpoint := st.Clone()
	checkpoint.TransferredToHuman = true
	checkpoint.CourtesySent = false
	checkpoint.CurrentStep = models.StepTransferHuman
	if err := e.store.PutConversationState(ctx, checkpoint); err != nil {
		return fmt.Errorf("failed to checkpoint state after quote %s: %w", q.ID, err)
	}
	return e.send(ctx, st, text)
}

func (e *Engine) saveLead(ctx context.Context, st *models.ConversationState, lead *models.Lead) error {
	lead.ApplyCollectedData(st.CollectedData)
	lead.Classification = st.LeadQuality
	if st.Category != "" {
		lead.AICategory = st.Category
	}
	stage := DetermineStage(st.CollectedData, st.QuoteGenerated, st.LeadQuality, e.vocab)
	if ApplyStage(lead, stage, e.vocab) {
		slog.Info("Engine.saveLead: funnel stage changed", "phone", st.PhoneNumber, "stage", stage)
	}
	if err := e.store.UpsertLead(ctx, lead); err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}
	return nil
}

// send delivers text within the send timeout and logs it to the transcript.
func (e *Engine) send(ctx context.Context, st *models.ConversationState, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	id, err := e.sender.SendMessage(sendCtx, st.PhoneNumber, text)
	e.metrics.RecordSend(err == nil)
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", st.PhoneNumber, err)
	}
	slog.Debug("Engine.send: message sent", "phone", st.PhoneNumber, "message_id", id)
	if err := e.store.AddTranscriptMessage(ctx, models.TranscriptMessage{
		ConversationID: st.ConversationID,
		PhoneNumber:    st.PhoneNumber,
		Sender:         models.SenderBot,
		Body:           text,
		Time:           e.now(),
	}); err != nil {
		slog.Warn("Engine.send: transcript write failed", "phone", st.PhoneNumber, "conversation_id", st.ConversationID, "error", err)
	}
	return nil
}

// apologize makes one best-effort attempt to tell the customer a human will
// follow up. It survives a cancelled parent context and a panicking sender.
func (e *Engine) apologize(ctx context.Context, tc *turnContext) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.apologize: panic while sending apology", "phone", tc.phone, "conversation_id", tc.conversationID, "panic", r)
		}
	}()
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sendTimeout)
	defer cancel()
	if _, err := e.sender.SendMessage(sendCtx, tc.phone, ApologyMessage); err != nil {
		e.metrics.RecordSend(false)
		slog.Error("Engine.apologize: apology send failed", "phone", tc.phone, "conversation_id", tc.conversationID, "error", err)
		return
	}
	e.metrics.RecordSend(true)
}
