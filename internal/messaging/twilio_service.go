package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a webhook without sending a reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements the Service interface using the Twilio API.
// Inbound messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client twiliowhatsapp.Sender // real Twilio client or MockClient
	bus    *eventBus
}

// NewTwilioService creates a new TwilioService over client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client: client,
		bus:    newEventBus("TwilioService"),
	}
}

// ValidateAndCanonicalizeRecipient implements Service. The whatsapp: prefix
// and any formatting are removed.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(strings.TrimPrefix(recipient, "whatsapp:"))
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService.ValidateAndCanonicalizeRecipient: canonicalized", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio; inbound traffic comes from the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	if s.bus.stop() {
		slog.Info("TwilioService.Stop: stopped and channels closed")
	}
	return nil
}

// SendMessage sends a message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	if s.bus.isStopped() {
		return "", ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return "", err
	}
	sid, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		return "", err
	}
	s.bus.emitReceipt(models.Receipt{To: canonicalTo, MessageID: sid, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return sid, nil
}

// Receipts returns the channel for message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.bus.receipts
}

// Responses returns the channel of inbound messages received by the webhook.
func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.bus.responses
}

// ParseTwilioWebhook converts Twilio's inbound form fields into an InboundMessage.
func ParseTwilioWebhook(r *http.Request) (models.InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return models.InboundMessage{}, fmt.Errorf("parse webhook form: %w", err)
	}
	from, err := CanonicalizePhone(strings.TrimPrefix(r.FormValue("From"), "whatsapp:"))
	if err != nil {
		return models.InboundMessage{}, fmt.Errorf("invalid From: %w", err)
	}
	msg := models.InboundMessage{
		MessageID: r.FormValue("MessageSid"),
		From:      from,
		Body:      r.FormValue("Body"),
		Type:      models.MessageTypeText,
		Time:      time.Now().Unix(),
	}
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if numMedia > 0 && strings.TrimSpace(msg.Body) == "" {
		msg.Type = mediaType(r.FormValue("MediaContentType0"))
	}
	if msg.Type == models.MessageTypeText && strings.TrimSpace(msg.Body) == "" {
		return models.InboundMessage{}, fmt.Errorf("missing Body")
	}
	return msg, nil
}

func mediaType(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeOther
	}
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits
// them into the Responses() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := ParseTwilioWebhook(r)
	if err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: rejected webhook", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	slog.Info("TwilioService.TwilioWebhookHandler: inbound message", "from", msg.From, "message_id", msg.MessageID, "type", msg.Type)

	if !s.bus.emitResponse(msg) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}
