package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/metrics"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingHandler struct {
	mu   sync.Mutex
	msgs []models.InboundMessage
}

func (h *recordingHandler) HandleInboundMessage(ctx context.Context, msg models.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.InMemoryStore, *recordingHandler) {
	t.Helper()
	st := store.NewInMemoryStore()
	h := &recordingHandler{}
	return NewServer(st, h, opts...), st, h
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var resp models.APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, resp := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected healthy response, got %d %+v", rec.Code, resp)
	}
}

func TestInboundAccepted(t *testing.T) {
	srv, _, h := newTestServer(t)
	rec, resp := do(t, srv, http.MethodPost, "/messages/inbound", `{"from":"+593 99 000 0001","body":"Hola"}`)
	if rec.Code != http.StatusAccepted || resp.Status != string(models.APIStatusAccepted) {
		t.Fatalf("expected 202 accepted, got %d %+v", rec.Code, resp)
	}
	srv.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.msgs) != 1 {
		t.Fatalf("expected one handled message, got %d", len(h.msgs))
	}
	msg := h.msgs[0]
	if msg.From != "593990000001" || msg.MessageID == "" || msg.Time == 0 {
		t.Errorf("message not normalized: %+v", msg)
	}
}

func TestInboundRejectsBadInput(t *testing.T) {
	srv, _, h := newTestServer(t)
	for name, body := range map[string]string{
		"invalid json": `{`,
		"no digits":    `{"from":"abc","body":"Hola"}`,
		"empty body":   `{"from":"593990000001","body":"  "}`,
	} {
		rec, resp := do(t, srv, http.MethodPost, "/messages/inbound", body)
		if rec.Code != http.StatusBadRequest || resp.Status != string(models.APIStatusError) {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	srv.Wait()
	if len(h.msgs) != 0 {
		t.Errorf("rejected messages must not reach the engine")
	}
}

func TestListLeadsFilters(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	for _, l := range []models.Lead{
		{PhoneNumber: "593990000001", FunnelStage: models.StageLead, Classification: models.ClassificationFrio},
		{PhoneNumber: "593990000002", FunnelStage: models.StageClientePotencial, Classification: models.ClassificationCaliente},
	} {
		l := l
		if err := st.CreateLead(ctx, &l); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	_, resp := do(t, srv, http.MethodGet, "/leads?classification=caliente", "")
	leads, ok := resp.Result.([]interface{})
	if !ok || len(leads) != 1 {
		t.Fatalf("expected one filtered lead, got %+v", resp.Result)
	}

	_, resp = do(t, srv, http.MethodGet, "/leads?stage=perdido", "")
	if leads, ok := resp.Result.([]interface{}); !ok || len(leads) != 0 {
		t.Errorf("expected an empty list, got %+v", resp.Result)
	}
}

func TestQuotes(t *testing.T) {
	srv, st, _ := newTestServer(t)
	q := models.Quote{ID: "q-1", PhoneNumber: "593990000001", Status: models.QuoteStatusPending, TotalCents: 45000, CreatedAt: time.Now()}
	if err := st.CreateQuote(context.Background(), &q); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec, resp := do(t, srv, http.MethodGet, "/quotes/q-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := resp.Result.(map[string]interface{})["id"]; got != "q-1" {
		t.Errorf("unexpected quote %v", got)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/quotes/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing quote, got %d", rec.Code)
	}

	_, resp = do(t, srv, http.MethodGet, "/quotes?status=pending", "")
	if quotes, ok := resp.Result.([]interface{}); !ok || len(quotes) != 1 {
		t.Errorf("expected one pending quote, got %+v", resp.Result)
	}
}

func TestConversationState(t *testing.T) {
	srv, st, _ := newTestServer(t)
	state := models.NewConversationState("593990000001", "conv-1", "keyword", time.Now())
	if err := st.PutConversationState(context.Background(), state); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec, resp := do(t, srv, http.MethodGet, "/conversations/593990000001/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := resp.Result.(map[string]interface{})["conversation_id"]; got != "conv-1" {
		t.Errorf("unexpected state %v", resp.Result)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/conversations/593990000009/state", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown phone, got %d", rec.Code)
	}
}

func TestCreateProduct(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := `{"code":"GR-10","name":"Gorra bordada","price_cents":500}`
	if rec, _ := do(t, srv, http.MethodPost, "/products", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/products", body); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a duplicate code, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/products", `{"code":"X-1","price_cents":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a product without name, got %d", rec.Code)
	}
}

func TestTwilioWebhookMountedOnlyWhenConfigured(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if rec, _ := do(t, srv, http.MethodPost, "/webhook/twilio", ""); rec.Code != http.StatusNotFound {
		t.Errorf("webhook must not be mounted without a Twilio transport, got %d", rec.Code)
	}

	called := false
	srv, _, _ = newTestServer(t, WithTwilioWebhook(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	if rec, _ := do(t, srv, http.MethodPost, "/webhook/twilio", ""); rec.Code != http.StatusOK || !called {
		t.Errorf("expected the webhook handler to serve, got %d", rec.Code)
	}
}

func TestMetricsEndpointAndRequestCounting(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	srv, _, _ := newTestServer(t, WithMetrics(m))

	do(t, srv, http.MethodGet, "/health", "")
	do(t, srv, http.MethodGet, "/quotes/missing", "")

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/health", "2xx")); got != 1 {
		t.Errorf("expected one counted health request, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/quotes/{id}", "4xx")); got != 1 {
		t.Errorf("requests are counted by route pattern, got %v", got)
	}

	rec, _ := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gimmicks_crm_http_requests_total") {
		t.Errorf("metrics endpoint missing collectors:\n%s", rec.Body.String())
	}
}
