package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // set when client is a real connection, for event handling
	bus      *eventBus
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		bus:    newEventBus("WhatsAppService"),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	} else {
		slog.Debug("NewWhatsAppService: sender without event source (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient implements Service.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no event source, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop disconnects the client and closes the event channels.
func (s *WhatsAppService) Stop() error {
	if !s.bus.stop() {
		return nil
	}
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService.Stop: stopped and channels closed")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	if s.bus.isStopped() {
		return "", ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return "", err
	}
	id, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "to", canonicalTo, "error", err)
		return "", err
	}
	s.bus.emitReceipt(models.Receipt{To: canonicalTo, MessageID: id, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return id, nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.bus.receipts
}

// Responses returns a channel of inbound customer messages.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.bus.responses
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Receipt:
		s.handleMessageReceipt(v)
	case *events.Connected:
		slog.Info("WhatsAppService.handleEvent: connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService.handleEvent: disconnected")
	}
}

// handleIncomingMessage converts a customer message into an InboundMessage.
// Non-text messages are forwarded with their type so the engine can log them.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	msg := models.InboundMessage{
		MessageID: string(evt.Info.ID),
		From:      evt.Info.Sender.User,
		Time:      evt.Info.Timestamp.Unix(),
		Type:      models.MessageTypeText,
	}
	switch {
	case evt.Message.GetConversation() != "":
		msg.Body = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		msg.Body = evt.Message.GetExtendedTextMessage().GetText()
	case evt.Message.GetImageMessage() != nil:
		msg.Type = models.MessageTypeImage
	case evt.Message.GetAudioMessage() != nil:
		msg.Type = models.MessageTypeAudio
	default:
		msg.Type = models.MessageTypeOther
	}

	if s.bus.emitResponse(msg) {
		slog.Debug("WhatsAppService.handleIncomingMessage: forwarded", "from", msg.From, "type", msg.Type, "message_id", msg.MessageID)
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	for _, id := range evt.MessageIDs {
		s.bus.emitReceipt(models.Receipt{
			To:        evt.MessageSource.Sender.User,
			MessageID: string(id),
			Status:    status,
			Time:      evt.Timestamp.Unix(),
		})
	}
}
