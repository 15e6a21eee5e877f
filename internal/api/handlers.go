package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/messaging"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", map[string]interface{}{
		"time": s.now().UTC(),
	}))
}

// inboundHandler accepts a customer message from an alternate transport and
// hands it to the engine in the background.
func (s *Server) inboundHandler(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundMessage
	if !decodeJSON(w, r, &msg) {
		return
	}
	from, err := messaging.CanonicalizePhone(msg.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(msg.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}
	msg.From = from
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Time == 0 {
		msg.Time = s.now().Unix()
	}

	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.inbound.HandleInboundMessage(ctx, msg)
	}()

	slog.Debug("Server.inboundHandler: message accepted", "from", msg.From, "message_id", msg.MessageID)
	resp := models.NewAPIResponseBuilder().
		WithStatus(models.APIStatusAccepted).
		WithMessage("Message accepted for processing").
		WithResult(map[string]string{"message_id": msg.MessageID}).
		Build()
	writeJSONResponse(w, http.StatusAccepted, resp)
}

func (s *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.LeadFilter{
		Stage:          models.FunnelStage(r.URL.Query().Get("stage")),
		Classification: models.Classification(r.URL.Query().Get("classification")),
	}
	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		slog.Error("Server.listLeadsHandler: list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list leads")
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

func (s *Server) listQuotesHandler(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.store.ListQuotes(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		slog.Error("Server.listQuotesHandler: list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list quotes")
		return
	}
	if quotes == nil {
		quotes = []models.Quote{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(quotes))
}

func (s *Server) getQuoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := s.store.GetQuote(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && q == nil) {
		writeError(w, http.StatusNotFound, "Quote not found")
		return
	}
	if err != nil {
		slog.Error("Server.getQuoteHandler: get failed", "quote_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get quote")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(q))
}

func (s *Server) conversationStateHandler(w http.ResponseWriter, r *http.Request) {
	phone, err := messaging.CanonicalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.store.GetConversationState(r.Context(), phone)
	if err != nil {
		slog.Error("Server.conversationStateHandler: get failed", "phone", phone, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get conversation state")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(st))
}

func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.AddProduct(r.Context(), &p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Product code already exists")
			return
		}
		slog.Error("Server.createProductHandler: add failed", "code", p.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add product")
		return
	}
	slog.Info("Server.createProductHandler: product added", "code", p.Code, "product_id", p.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Product created", p))
}
