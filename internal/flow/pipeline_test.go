package flow

import (
	"testing"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

func TestDetermineStage(t *testing.T) {
	product := models.CollectedData{models.FieldProducto: "termo"}
	full := models.CollectedData{models.FieldProducto: "termo", models.FieldNombre: "Ana"}
	tests := []struct {
		name    string
		data    models.CollectedData
		quoted  bool
		quality models.Classification
		vocab   Vocabulary
		want    models.FunnelStage
	}{
		{"quoted", models.CollectedData{}, true, models.ClassificationFrio, PipelineVocabulary, models.StageCotizacionGenerada},
		{"interest and identity", full, false, models.ClassificationFrio, PipelineVocabulary, models.StageClientePotencial},
		{"interest only", product, false, models.ClassificationFrio, PipelineVocabulary, models.StageClientePotencial},
		{"warm quality", models.CollectedData{}, false, models.ClassificationTibio, PipelineVocabulary, models.StageClientePotencial},
		{"cold", models.CollectedData{models.FieldNombre: "Ana"}, false, models.ClassificationFrio, PipelineVocabulary, models.StageLead},
		{"production quoted", product, true, models.ClassificationCaliente, ProductionVocabulary, models.StagePedido},
		{"production prospect", product, false, models.ClassificationTibio, ProductionVocabulary, models.StageLead},
	}
	for _, tt := range tests {
		if got := DetermineStage(tt.data, tt.quoted, tt.quality, tt.vocab); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestAssessLeadQuality(t *testing.T) {
	st := models.NewConversationState("1", "c", StrategyKeyword, time.Now())
	if q := AssessLeadQuality(st); q != models.ClassificationFrio {
		t.Errorf("empty state: got %s", q)
	}
	st.MarkCatalogSent("gorra")
	if q := AssessLeadQuality(st); q != models.ClassificationTibio {
		t.Errorf("catalog sent: got %s", q)
	}
	st.CollectedData.Set(models.FieldCodigosProducto, "GR-10")
	st.CollectedData.Set(models.FieldCantidad, "100")
	st.CollectedData.Set(models.FieldFechaEntrega, "mayo")
	if q := AssessLeadQuality(st); q != models.ClassificationCaliente {
		t.Errorf("complete order data: got %s", q)
	}
}

func TestApplyStageKeepsHumanStages(t *testing.T) {
	lead := &models.Lead{FunnelStage: models.StageLead}
	if !ApplyStage(lead, models.StageClientePotencial, PipelineVocabulary) || lead.FunnelStage != models.StageClientePotencial {
		t.Errorf("classifier should move lead, got %s", lead.FunnelStage)
	}
	if ApplyStage(lead, models.StageClientePotencial, PipelineVocabulary) {
		t.Error("no change should report false")
	}
	lead.FunnelStage = models.StagePedido
	if ApplyStage(lead, models.StageCotizacionGenerada, PipelineVocabulary) || lead.FunnelStage != models.StagePedido {
		t.Errorf("human stage must be kept, got %s", lead.FunnelStage)
	}
}

func TestReactivate(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	lead := &models.Lead{FunnelStage: models.StagePerdido, Status: models.LeadStatusInactive}
	st := models.NewConversationState("1", "c", StrategyKeyword, now)
	st.CurrentStep = models.StepTransferHuman
	st.TransferredToHuman = true
	st.QuoteGenerated = true
	st.CourtesySent = true
	st.MenuAttempts = 1
	st.SetRequestType(models.RequestQuote)
	st.CollectedData.Set(models.FieldNombre, "Ana")

	if !NeedsReactivation(lead, PipelineVocabulary) {
		t.Fatal("lost lead should need reactivation")
	}
	Reactivate(lead, st, PipelineVocabulary, now)

	if lead.FunnelStage != models.StageLead || lead.Status != models.LeadStatusActive || !lead.UpdatedAt.Equal(now) {
		t.Errorf("lead not reset: %+v", lead)
	}
	if st.TransferredToHuman || st.QuoteGenerated || st.CourtesySent || st.RequestType != nil || st.MenuAttempts != 0 {
		t.Errorf("conversation flags not reset: %+v", st)
	}
	if st.CurrentStep != models.StepGreeting {
		t.Errorf("expected greeting, got %s", st.CurrentStep)
	}
	if st.CollectedData.Get(models.FieldNombre) != "Ana" {
		t.Error("collected data must survive reactivation")
	}
	if NeedsReactivation(lead, PipelineVocabulary) {
		t.Error("reactivated lead no longer needs reactivation")
	}
}

func TestVocabularyByName(t *testing.T) {
	if v, err := VocabularyByName(""); err != nil || v.Name != "pipeline" {
		t.Errorf("default vocabulary: %v %v", v.Name, err)
	}
	if v, err := VocabularyByName("production"); err != nil || !v.Contains(models.StageProduccion) {
		t.Errorf("production vocabulary: %v %v", v.Name, err)
	}
	if _, err := VocabularyByName("kanban"); err == nil {
		t.Error("expected error for unknown vocabulary")
	}
}
