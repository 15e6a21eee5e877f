// Package models defines conversation state structures for the lead-qualification engine.
package models

import "time"

// Classification is the lead quality signal shared by leads and conversation state.
type Classification string

const (
	ClassificationFrio     Classification = "frio"
	ClassificationTibio    Classification = "tibio"
	ClassificationCaliente Classification = "caliente"
)

// IsValidClassification reports whether c is a known lead quality.
func IsValidClassification(c Classification) bool {
	switch c {
	case ClassificationFrio, ClassificationTibio, ClassificationCaliente:
		return true
	default:
		return false
	}
}

// ConversationState is the durable per-phone record that carries dialogue continuity.
type ConversationState struct {
	PhoneNumber        string         `json:"phone_number"`
	ConversationID     string         `json:"conversation_id"`
	Strategy           string         `json:"strategy"` // strategy bound when the conversation was created
	CurrentStep        Step           `json:"current_step"`
	RequestType        *RequestType   `json:"request_type,omitempty"`
	CollectedData      CollectedData  `json:"collected_data"`
	CatalogSent        []string       `json:"catalog_sent"` // catalog keywords already delivered
	QuoteGenerated     bool           `json:"quote_generated"`
	TransferredToHuman bool           `json:"transferred_to_human"`
	CourtesySent       bool           `json:"courtesy_sent"`
	LeadQuality        Classification `json:"lead_quality"`
	Category           string         `json:"category,omitempty"`
	MenuAttempts       int            `json:"menu_attempts"`
	CorrectingField    Field          `json:"correcting_field,omitempty"`
	MessageCount       int            `json:"message_count"`
	LastInteraction    time.Time      `json:"last_interaction"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewConversationState returns a fresh state positioned at the greeting step.
func NewConversationState(phone, conversationID, strategy string, now time.Time) *ConversationState {
	return &ConversationState{
		PhoneNumber:     phone,
		ConversationID:  conversationID,
		Strategy:        strategy,
		CurrentStep:     StepGreeting,
		CollectedData:   CollectedData{},
		CatalogSent:     []string{},
		LeadQuality:     ClassificationFrio,
		LastInteraction: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasSentCatalog reports whether the catalog for key was already delivered.
func (s *ConversationState) HasSentCatalog(key string) bool {
	for _, sent := range s.CatalogSent {
		if sent == key {
			return true
		}
	}
	return false
}

// MarkCatalogSent records key as delivered. Returns false if it already was.
func (s *ConversationState) MarkCatalogSent(key string) bool {
	if s.HasSentCatalog(key) {
		return false
	}
	s.CatalogSent = append(s.CatalogSent, key)
	return true
}

// SetRequestType stores rt only when no request type has been recorded yet.
func (s *ConversationState) SetRequestType(rt RequestType) bool {
	if s.RequestType != nil || !IsValidRequestType(rt) {
		return false
	}
	s.RequestType = &rt
	return true
}

// Clone returns a deep copy so strategies can work on state without aliasing.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.CollectedData = s.CollectedData.Clone()
	out.CatalogSent = append([]string(nil), s.CatalogSent...)
	if s.RequestType != nil {
		rt := *s.RequestType
		out.RequestType = &rt
	}
	return &out
}
