package flow

import (
	"context"
	"fmt"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
)

// Strategy names accepted by CONVERSATION_STRATEGY.
const (
	StrategyKeyword = "keyword"
	StrategyGenAI   = "genai"
)

// ActionKind identifies an outbound side effect of a decision.
type ActionKind string

const (
	ActionSendText      ActionKind = "send_text"
	ActionSendCatalog   ActionKind = "send_catalog"
	ActionGenerateQuote ActionKind = "generate_quote"
	ActionTransferHuman ActionKind = "transfer_human"
)

// Action is one ordered side effect. Text is used by SendText and
// TransferHuman, Keyword by SendCatalog.
type Action struct {
	Kind    ActionKind
	Text    string
	Keyword string
}

func SendText(text string) Action { return Action{Kind: ActionSendText, Text: text} }

// SendCatalog sends the catalog for keyword. An empty keyword sends the
// featured selection.
func SendCatalog(keyword string) Action { return Action{Kind: ActionSendCatalog, Keyword: keyword} }

func GenerateQuote() Action { return Action{Kind: ActionGenerateQuote} }

func TransferHuman(text string) Action { return Action{Kind: ActionTransferHuman, Text: text} }

// Turn is the input of a strategy for one inbound message. State is a copy
// the strategy may read but must not persist.
type Turn struct {
	State   *models.ConversationState
	Message string
	Catalog store.CatalogReader
	History []models.TranscriptMessage
}

// Decision is the outcome of a turn. The engine applies it to the state and
// executes Actions in order.
type Decision struct {
	NextStep    models.Step
	Data        models.CollectedData
	RequestType *models.RequestType
	// LeadQuality is left empty when the engine should assess it.
	LeadQuality     models.Classification
	Category        string
	MenuAttempts    int
	CorrectingField models.Field
	// Cleared lists fields to remove; Data merges never erase.
	Cleared []models.Field
	Actions []Action
}

// ConversationStrategy decides the reply to one inbound message.
type ConversationStrategy interface {
	Name() string
	Decide(ctx context.Context, turn Turn) (Decision, error)
}

// Strategies resolves the strategy bound to a conversation by name.
type Strategies struct {
	byName      map[string]ConversationStrategy
	defaultName string
}

// NewStrategies registers the given strategies. The first one is used for
// new conversations unless SetDefault picks another.
func NewStrategies(strategies ...ConversationStrategy) *Strategies {
	s := &Strategies{byName: make(map[string]ConversationStrategy)}
	for _, st := range strategies {
		if s.defaultName == "" {
			s.defaultName = st.Name()
		}
		s.byName[st.Name()] = st
	}
	return s
}

// SetDefault selects the strategy bound to new conversations.
func (s *Strategies) SetDefault(name string) error {
	if _, ok := s.byName[name]; !ok {
		return fmt.Errorf("unknown conversation strategy %q", name)
	}
	s.defaultName = name
	return nil
}

// Default returns the name bound to new conversations.
func (s *Strategies) Default() string {
	return s.defaultName
}

// Get returns the strategy for name, falling back to the default when the
// name is unknown (for example after a strategy was unregistered).
func (s *Strategies) Get(name string) ConversationStrategy {
	if st, ok := s.byName[name]; ok {
		return st
	}
	return s.byName[s.defaultName]
}
