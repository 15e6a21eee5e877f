package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/genai"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
)

// fakeLLM returns a canned completion and decodes it like genai.Client does.
type fakeLLM struct {
	completion string
	err        error
	userPrompt string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, v interface{}) (string, error) {
	f.userPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.completion, genai.DecodeJSONObject(f.completion, v)
}

func genaiTurn(t *testing.T, st *models.ConversationState, message string) Turn {
	t.Helper()
	s := store.NewInMemoryStore()
	p := models.Product{Code: "TR-01", Name: "Termo acero", PriceCents: 1000}
	if err := s.AddProduct(context.Background(), &p); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return Turn{
		State:   st,
		Message: message,
		Catalog: s,
		History: []models.TranscriptMessage{{Sender: models.SenderUser, Body: "hola"}, {Sender: models.SenderBot, Body: "¡Hola!"}},
	}
}

func TestGenAIStrategyMapsReply(t *testing.T) {
	llm := &fakeLLM{completion: `Claro: {"response":"Te paso opciones de termos","extracted_data":{"nombre":"Ana","cantidad":100,"correo":null},
		"catalog_search":"termo","intent":"solicitud_catalogo","lead_quality":"tibio","category":"solicitud_catalogo",
		"needs_quote":false,"needs_human":false}`}
	st := newTestState(models.StepGreeting)
	d, err := NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, st, "tienes termos?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Data.Get(models.FieldNombre) != "Ana" || d.Data.Get(models.FieldCantidad) != "100" || d.Data.Has(models.FieldCorreo) {
		t.Errorf("unexpected extracted data: %v", d.Data)
	}
	if d.LeadQuality != models.ClassificationTibio || d.RequestType == nil || *d.RequestType != models.RequestCatalog {
		t.Errorf("quality or intent not mapped: %+v", d)
	}
	if len(d.Actions) != 2 || d.Actions[0].Text != "Te paso opciones de termos" || d.Actions[1].Keyword != "termo" {
		t.Errorf("unexpected actions: %+v", d.Actions)
	}
	if d.NextStep != models.StepIdentifyNeed {
		t.Errorf("expected identify_need, got %s", d.NextStep)
	}
	for _, want := range []string{"TR-01: Termo acero", "Ana: ¡Hola!", "MENSAJE DEL CLIENTE: tienes termos?", "Datos que FALTAN"} {
		if !strings.Contains(llm.userPrompt, want) {
			t.Errorf("user prompt missing %q:\n%s", want, llm.userPrompt)
		}
	}
}

func TestGenAIStrategySkipsSentCatalog(t *testing.T) {
	llm := &fakeLLM{completion: `{"response":"Aquí van","catalog_search":"Termo"}`}
	st := newTestState(models.StepIdentifyNeed)
	st.MarkCatalogSent("termo")
	d, err := NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, st, "termos otra vez"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Actions) != 1 {
		t.Errorf("catalog already sent must not be requested again: %+v", d.Actions)
	}
}

func TestGenAIStrategyQuoteNeedsMinimumData(t *testing.T) {
	llm := &fakeLLM{completion: `{"response":"Listo","needs_quote":true,"needs_human":true}`}
	st := newTestState(models.StepIdentifyNeed)
	st.CollectedData.Set(models.FieldCorreo, "a@b.com")

	d, _ := NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, st, "cotiza"))
	for _, a := range d.Actions {
		if a.Kind == ActionGenerateQuote {
			t.Fatal("quote requested without product and cantidad")
		}
	}
	if d.NextStep != models.StepTransferHuman || d.Actions[len(d.Actions)-1].Kind != ActionTransferHuman {
		t.Errorf("needs_human should transfer, got %+v", d)
	}

	st.CollectedData.Set(models.FieldCodigosProducto, "TR-01")
	st.CollectedData.Set(models.FieldCantidad, "50")
	d, _ = NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, st, "cotiza"))
	if d.Actions[1].Kind != ActionGenerateQuote {
		t.Errorf("expected a quote action, got %+v", d.Actions)
	}
}

func TestGenAIStrategyPlainTextFallback(t *testing.T) {
	llm := &fakeLLM{completion: "Hola, con gusto te ayudo."}
	st := newTestState(models.StepIdentifyNeed)
	st.LeadQuality = models.ClassificationTibio
	d, err := NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, st, "hola"))
	if err != nil {
		t.Fatalf("unparseable output must not fail: %v", err)
	}
	if len(d.Actions) != 1 || d.Actions[0].Text != "Hola, con gusto te ayudo." {
		t.Errorf("expected a plain text reply, got %+v", d.Actions)
	}
	if d.LeadQuality != models.ClassificationTibio {
		t.Errorf("lead quality must be unchanged, got %s", d.LeadQuality)
	}
}

func TestGenAIStrategyCompletionError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("rate limited")}
	_, err := NewGenAIStrategy(llm).Decide(context.Background(), genaiTurn(t, newTestState(models.StepIdentifyNeed), "hola"))
	if err == nil {
		t.Error("expected error when the model call fails")
	}
}
