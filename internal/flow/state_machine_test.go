package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

func newTestState(step models.Step) *models.ConversationState {
	st := models.NewConversationState("593990000001", "conv-1", StrategyKeyword, time.Now())
	st.CurrentStep = step
	return st
}

func decide(t *testing.T, st *models.ConversationState, message string) Decision {
	t.Helper()
	d, err := NewStateMachine(nil).Decide(context.Background(), Turn{State: st, Message: message})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	return d
}

func texts(actions []Action) []string {
	var out []string
	for _, a := range actions {
		if a.Kind == ActionSendText || a.Kind == ActionTransferHuman {
			out = append(out, a.Text)
		}
	}
	return out
}

func TestGreetingSendsWelcome(t *testing.T) {
	d := decide(t, newTestState(models.StepGreeting), "Hola")
	if d.NextStep != models.StepIdentifyNeed {
		t.Errorf("expected identify_need, got %s", d.NextStep)
	}
	if len(d.Actions) != 1 || d.Actions[0].Text != WelcomeMessage {
		t.Errorf("expected exactly the welcome message, got %+v", d.Actions)
	}
}

func TestIdentifyNeedRouting(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    models.RequestType
		prefix  string
	}{
		{"menu quote", "1", models.RequestQuote, QuoteStartMessage},
		{"corporate", "regalos corporativos", models.RequestCorporate, CorporateStartMessage},
		{"urgent", "6", models.RequestUrgent, UrgentStartMessage},
		{"ideas", "3", models.RequestIdeas, IdeasPromptMessage},
		{"seasonal", "algo para navidad", models.RequestSeasonal, SeasonalPromptMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decide(t, newTestState(models.StepIdentifyNeed), tt.message)
			if d.RequestType == nil || *d.RequestType != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, d.RequestType)
			}
			if d.NextStep != models.StepCollectName {
				t.Errorf("expected collect_name, got %s", d.NextStep)
			}
			got := texts(d.Actions)
			if len(got) != 1 || !strings.HasPrefix(got[0], tt.prefix) {
				t.Fatalf("expected one reply starting with the intro, got %q", got)
			}
			if !strings.Contains(got[0], stepQuestions[models.StepCollectName]) {
				t.Errorf("name question missing: %q", got)
			}
		})
	}
}

func TestIdentifyNeedCatalog(t *testing.T) {
	d := decide(t, newTestState(models.StepIdentifyNeed), "quiero ver el catálogo de termos")
	if len(d.Actions) != 2 || d.Actions[0].Kind != ActionSendCatalog || d.Actions[0].Keyword != "termo" {
		t.Fatalf("expected a termo catalog then a question, got %+v", d.Actions)
	}
	if !strings.HasPrefix(d.Actions[1].Text, CatalogFollowUpPrefix) {
		t.Errorf("unexpected follow-up %q", d.Actions[1].Text)
	}

	d = decide(t, newTestState(models.StepIdentifyNeed), "2")
	if d.Actions[0].Kind != ActionSendCatalog || d.Actions[0].Keyword != "" {
		t.Errorf("menu option 2 should send the featured catalog, got %+v", d.Actions[0])
	}
}

func TestIdentifyNeedRepromptsOnceThenGeneral(t *testing.T) {
	st := newTestState(models.StepIdentifyNeed)
	d := decide(t, st, "mmm")
	if d.NextStep != models.StepIdentifyNeed || d.MenuAttempts != 1 || d.RequestType != nil {
		t.Fatalf("expected a menu re-prompt, got %+v", d)
	}
	if texts(d.Actions)[0] != MenuRepromptMessage {
		t.Errorf("expected menu re-prompt text")
	}

	st.MenuAttempts = d.MenuAttempts
	d = decide(t, st, "no sé")
	if d.RequestType == nil || *d.RequestType != models.RequestGeneral {
		t.Fatalf("second miss should fall back to general, got %v", d.RequestType)
	}
	if d.NextStep != models.StepCollectName || d.MenuAttempts != 0 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestIdentifyNeedUsesStoredRequestType(t *testing.T) {
	st := newTestState(models.StepIdentifyNeed)
	st.SetRequestType(models.RequestUrgent)
	d := decide(t, st, "hola de nuevo")
	if d.RequestType == nil || *d.RequestType != models.RequestUrgent {
		t.Errorf("expected stored urgent type, got %v", d.RequestType)
	}
}

func TestCollectSkipsFilledFields(t *testing.T) {
	st := newTestState(models.StepCollectName)
	st.CollectedData.Set(models.FieldEmpresa, "Acme")
	d := decide(t, st, "mi correo es a@b.com, me llamo Juan")
	if d.NextStep != models.StepCollectCiudad {
		t.Errorf("empresa is filled, expected collect_ciudad, got %s", d.NextStep)
	}
	if d.Data.Get(models.FieldCorreo) != "a@b.com" {
		t.Errorf("correo not captured: %v", d.Data)
	}
}

func TestCollectCantidadRetry(t *testing.T) {
	st := newTestState(models.StepCollectCantidad)
	d := decide(t, st, "bastantes")
	if d.NextStep != models.StepCollectCantidad || d.Data.Has(models.FieldCantidad) {
		t.Fatalf("expected to stay at collect_cantidad, got %s %v", d.NextStep, d.Data)
	}
	if !strings.HasPrefix(texts(d.Actions)[0], QuantityRetryMessage) {
		t.Errorf("expected the quantity retry text")
	}

	d = decide(t, st, "unas 150")
	if d.Data.Get(models.FieldCantidad) != "150" || d.NextStep != models.StepCollectFecha {
		t.Errorf("expected cantidad 150 and collect_fecha, got %v %s", d.Data, d.NextStep)
	}
}

func TestCollectCorreoCapturesProduct(t *testing.T) {
	st := newTestState(models.StepCollectCorreo)
	d := decide(t, st, "ana@acme.ec, y me interesan gorras")
	if d.Data.Get(models.FieldProducto) != "gorra" {
		t.Errorf("expected producto gorra, got %v", d.Data)
	}
	if d.NextStep != models.StepCollectCantidad {
		t.Errorf("collect_producto should be skipped, got %s", d.NextStep)
	}
}

func TestLastCollectStepGoesToConfirm(t *testing.T) {
	st := newTestState(models.StepCollectPersonalizacion)
	d := decide(t, st, "bordado")
	if d.NextStep != models.StepConfirmData {
		t.Fatalf("expected confirm_data, got %s", d.NextStep)
	}
	if !strings.Contains(texts(d.Actions)[0], "Personalización: bordado") {
		t.Errorf("summary missing personalizacion: %q", texts(d.Actions)[0])
	}
}

func TestConfirmData(t *testing.T) {
	tests := []struct {
		reply string
		want  models.Step
	}{
		{"sí", models.StepTransferHuman},
		{"Correcto!", models.StepTransferHuman},
		{"está bien", models.StepTransferHuman},
		{"no", models.StepCorrectData},
		{"Cambiar", models.StepCorrectData},
		{"tal vez", models.StepConfirmData},
	}
	for _, tt := range tests {
		d := decide(t, newTestState(models.StepConfirmData), tt.reply)
		if d.NextStep != tt.want {
			t.Errorf("reply %q: got %s, want %s", tt.reply, d.NextStep, tt.want)
		}
	}

	d := decide(t, newTestState(models.StepConfirmData), "si")
	if len(d.Actions) != 2 || d.Actions[0].Kind != ActionGenerateQuote || d.Actions[1].Kind != ActionTransferHuman {
		t.Errorf("affirmation should quote then transfer, got %+v", d.Actions)
	}

	st := newTestState(models.StepConfirmData)
	first := decide(t, st, "tal vez")
	second := decide(t, st, "quizás")
	if texts(first.Actions)[0] != texts(second.Actions)[0] {
		t.Error("unclear replies must re-send the same confirmation prompt")
	}
}

func TestCorrectDataFlow(t *testing.T) {
	st := newTestState(models.StepCorrectData)
	for k, v := range map[models.Field]string{
		models.FieldNombre: "Ana", models.FieldCiudad: "Quito", models.FieldCantidad: "100",
	} {
		st.CollectedData.Set(k, v)
	}

	d := decide(t, st, "3")
	if d.NextStep != models.StepCollectCiudad || d.CorrectingField != models.FieldCiudad {
		t.Fatalf("option 3 should correct ciudad, got %s %s", d.NextStep, d.CorrectingField)
	}

	st.CurrentStep = d.NextStep
	st.CorrectingField = d.CorrectingField
	d = decide(t, st, "Guayaquil")
	if d.NextStep != models.StepConfirmData || d.CorrectingField != "" {
		t.Errorf("a corrected field returns to confirm_data, got %s", d.NextStep)
	}
	if d.Data.Get(models.FieldCiudad) != "Guayaquil" {
		t.Errorf("ciudad not updated: %v", d.Data)
	}

	d = decide(t, newTestState(models.StepCorrectData), "el correo")
	if d.CorrectingField != models.FieldCorreo {
		t.Errorf("keyword choice failed, got %s", d.CorrectingField)
	}
	d = decide(t, newTestState(models.StepCorrectData), "xyz")
	if d.NextStep != models.StepCorrectData {
		t.Errorf("unmatched choice should re-prompt, got %s", d.NextStep)
	}
}

func TestCorrectProductoDropsStaleCodes(t *testing.T) {
	st := newTestState(models.StepCollectProducto)
	st.CorrectingField = models.FieldProducto
	st.CollectedData.Set(models.FieldProducto, "GR-10")
	st.CollectedData.Set(models.FieldCodigosProducto, "GR-10")

	d := decide(t, st, "termo acero")
	if d.NextStep != models.StepConfirmData {
		t.Fatalf("expected confirm_data, got %s", d.NextStep)
	}
	if d.Data.Has(models.FieldCodigosProducto) {
		t.Errorf("old codes must not survive: %v", d.Data)
	}
	if len(d.Cleared) != 1 || d.Cleared[0] != models.FieldCodigosProducto {
		t.Errorf("expected codigos_producto cleared, got %v", d.Cleared)
	}

	d = decide(t, st, "mejor TR-01")
	if got := d.Data.Get(models.FieldCodigosProducto); got != "TR-01" || len(d.Cleared) != 0 {
		t.Errorf("new codes should replace the old ones, got %q cleared %v", got, d.Cleared)
	}
}

func TestTransferStepCompletesInterruptedHandoff(t *testing.T) {
	st := newTestState(models.StepTransferHuman)
	d := decide(t, st, "¿hola?")
	if d.NextStep != models.StepTransferHuman || len(d.Actions) != 1 || d.Actions[0].Kind != ActionTransferHuman {
		t.Fatalf("expected a transfer action, got %+v", d)
	}

	st.TransferredToHuman = true
	if d = decide(t, st, "¿hola?"); len(d.Actions) != 0 {
		t.Errorf("a transferred conversation needs no actions, got %+v", d.Actions)
	}
}

func TestDecideAlwaysValidStep(t *testing.T) {
	messages := []string{"", "hola", "1", "sí", "no", "a@b.com", "999", "¿?", "catálogo de gorras"}
	for _, step := range append(models.AllSteps, "bogus_step") {
		for _, msg := range messages {
			st := newTestState(step)
			d := decide(t, st, msg)
			if !models.IsValidStep(d.NextStep) {
				t.Errorf("step %s message %q produced invalid step %q", step, msg, d.NextStep)
			}
			if step != models.StepTransferHuman && len(d.Actions) == 0 {
				t.Errorf("step %s message %q produced no outbound message", step, msg)
			}
		}
	}
}
