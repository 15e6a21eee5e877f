package flow

import (
	"fmt"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// Vocabulary is one deployment's set of funnel stages and the roles the
// classifier assigns to them.
type Vocabulary struct {
	Name     string
	Stages   []models.FunnelStage
	Initial  models.FunnelStage
	Prospect models.FunnelStage
	Quoted   models.FunnelStage
	Lost     models.FunnelStage
}

var (
	// PipelineVocabulary is the sales pipeline used by default.
	PipelineVocabulary = Vocabulary{
		Name:     "pipeline",
		Stages:   []models.FunnelStage{models.StageLead, models.StageClientePotencial, models.StageCotizacionGenerada, models.StagePedido, models.StagePerdido},
		Initial:  models.StageLead,
		Prospect: models.StageClientePotencial,
		Quoted:   models.StageCotizacionGenerada,
		Lost:     models.StagePerdido,
	}
	// ProductionVocabulary tracks orders through production. It has no
	// prospect stage, so prospects stay in lead.
	ProductionVocabulary = Vocabulary{
		Name:     "production",
		Stages:   []models.FunnelStage{models.StageLead, models.StagePedido, models.StageProduccion, models.StageEntregado, models.StagePerdido, models.StageCierre},
		Initial:  models.StageLead,
		Prospect: models.StageLead,
		Quoted:   models.StagePedido,
		Lost:     models.StagePerdido,
	}
)

// VocabularyByName resolves FUNNEL_VOCABULARY.
func VocabularyByName(name string) (Vocabulary, error) {
	switch name {
	case "", PipelineVocabulary.Name:
		return PipelineVocabulary, nil
	case ProductionVocabulary.Name:
		return ProductionVocabulary, nil
	default:
		return Vocabulary{}, fmt.Errorf("unknown funnel vocabulary %q", name)
	}
}

// Contains reports whether stage belongs to the vocabulary.
func (v Vocabulary) Contains(stage models.FunnelStage) bool {
	for _, s := range v.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// classifierOwned reports whether the classifier may move a lead out of stage.
func (v Vocabulary) classifierOwned(stage models.FunnelStage) bool {
	return stage == "" || stage == v.Initial || stage == v.Prospect || stage == v.Quoted
}

func hasProductInterest(data models.CollectedData) bool {
	return data.Has(models.FieldProducto) || data.Has(models.FieldCodigosProducto)
}

// DetermineStage derives the funnel stage from the conversation progress.
func DetermineStage(data models.CollectedData, quoteGenerated bool, quality models.Classification, vocab Vocabulary) models.FunnelStage {
	if quoteGenerated {
		return vocab.Quoted
	}
	interest := hasProductInterest(data)
	identity := data.Has(models.FieldNombre) || data.Has(models.FieldCorreo)
	if interest && identity {
		return vocab.Prospect
	}
	if interest || quality == models.ClassificationTibio || quality == models.ClassificationCaliente {
		return vocab.Prospect
	}
	return vocab.Initial
}

// AssessLeadQuality is the keyword strategy's lead quality signal.
func AssessLeadQuality(st *models.ConversationState) models.Classification {
	d := st.CollectedData
	if hasProductInterest(d) && d.Has(models.FieldCantidad) && d.Has(models.FieldFechaEntrega) {
		return models.ClassificationCaliente
	}
	if hasProductInterest(d) || len(st.CatalogSent) > 0 {
		return models.ClassificationTibio
	}
	return models.ClassificationFrio
}

// ApplyStage moves the lead to stage unless a human has already moved it to
// a stage the classifier does not own. Reports whether the stage changed.
func ApplyStage(lead *models.Lead, stage models.FunnelStage, vocab Vocabulary) bool {
	if !vocab.classifierOwned(lead.FunnelStage) || lead.FunnelStage == stage {
		return false
	}
	lead.FunnelStage = stage
	return true
}

// NeedsReactivation reports whether a returning customer must be reactivated.
func NeedsReactivation(lead *models.Lead, vocab Vocabulary) bool {
	return lead != nil && lead.FunnelStage == vocab.Lost
}

// Reactivate resets a lost lead and its conversation so the dialogue starts
// over. Collected data is kept.
func Reactivate(lead *models.Lead, st *models.ConversationState, vocab Vocabulary, now time.Time) {
	lead.FunnelStage = vocab.Initial
	lead.Status = models.LeadStatusActive
	lead.UpdatedAt = now

	st.TransferredToHuman = false
	st.QuoteGenerated = false
	st.CourtesySent = false
	st.RequestType = nil
	st.MenuAttempts = 0
	st.CorrectingField = ""
	if st.CurrentStep == models.StepTransferHuman {
		st.CurrentStep = models.StepGreeting
	}
}
