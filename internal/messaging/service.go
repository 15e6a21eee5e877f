// Package messaging connects WhatsApp transports to the CRM engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an event waits for a full channel before it is dropped
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and inbound message events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a phone number and returns
	// its digits-only form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message and returns the transport message id.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// Start begins any background processing (e.g., event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channels.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound customer messages.
	Responses() <-chan models.InboundMessage
}

// CanonicalizePhone strips everything but digits from recipient.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// eventBus owns the receipt and response channels of a service. Emitters
// hold the read lock while sending so stop never closes a channel under them.
type eventBus struct {
	name      string
	mu        sync.RWMutex
	stopped   bool
	receipts  chan models.Receipt
	responses chan models.InboundMessage
}

func newEventBus(name string) *eventBus {
	return &eventBus{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
}

func (b *eventBus) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

func (b *eventBus) emitReceipt(r models.Receipt) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return false
	}
	select {
	case b.receipts <- r:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+".emitReceipt: receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
		return false
	}
}

func (b *eventBus) emitResponse(m models.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+".emitResponse: service stopped, dropping inbound message", "from", m.From)
		return false
	}
	select {
	case b.responses <- m:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+".emitResponse: responses channel blocked, dropping message", "from", m.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// stop closes the channels once. It reports false if already stopped.
func (b *eventBus) stop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.stopped = true
	close(b.receipts)
	close(b.responses)
	return true
}
