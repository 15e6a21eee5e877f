package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

const menuText = "1. Cotizar productos\n" +
	"2. Ver catálogo\n" +
	"3. Ideas para regalos\n" +
	"4. Pedidos de temporada\n" +
	"5. Regalos corporativos y ejecutivos\n" +
	"6. Pedido urgente"

// Dialogue texts of the keyword strategy.
const (
	WelcomeMessage = "¡Hola! Gracias por escribir a Gimmicks Marketing Services. Soy Ana, tu asesora virtual.\n\n" +
		"¿En qué te puedo ayudar hoy?\n" + menuText + "\n\n" +
		"Responde con el número o cuéntame qué necesitas."
	MenuRepromptMessage    = "No logré entender tu solicitud. Por favor elige una opción:\n" + menuText
	GeneralStartMessage    = "Con gusto te ayudo. Para atenderte mejor necesito algunos datos."
	QuoteStartMessage      = "¡Perfecto! Vamos a preparar tu cotización."
	CorporateStartMessage  = "Excelente, manejamos líneas corporativas y ejecutivas para empresas. Vamos a armar tu propuesta."
	UrgentStartMessage     = "Entendido, damos prioridad a los pedidos urgentes. Avancemos rápido."
	IdeasPromptMessage     = "¡Me encanta ayudar con ideas! Cuéntame para qué ocasión o público es el regalo y te sugiero opciones."
	SeasonalPromptMessage  = "¡Genial! Tenemos opciones para cada temporada: Navidad, Día de la Madre, fin de año y más."
	CatalogFollowUpPrefix  = "Mientras lo revisas,"
	QuantityRetryMessage   = "Necesito la cantidad en números, por ejemplo 100."
	CorrectRepromptMessage = "No reconocí la opción."
	TransferMessage        = "Voy a pasar tu caso a Ana María, nuestra asesora. Ella te contactará pronto."
)

// stepQuestions is the question that opens each collection step.
var stepQuestions = map[models.Step]string{
	models.StepCollectName:            "¿Cuál es tu nombre?",
	models.StepCollectEmpresa:         "¿Cuál es el nombre de tu empresa?",
	models.StepCollectCiudad:          "¿En qué ciudad necesitas la entrega?",
	models.StepCollectCorreo:          "¿Cuál es tu correo electrónico para enviarte la cotización?",
	models.StepCollectProducto:        "¿Qué producto te interesa? Si tienes códigos del catálogo, compártelos.",
	models.StepCollectCantidad:        "¿Cuántas unidades necesitas?",
	models.StepCollectFecha:           "¿Para qué fecha necesitas el pedido?",
	models.StepCollectPresupuesto:     "¿Tienes un presupuesto aproximado?",
	models.StepCollectPersonalizacion: "¿Qué tipo de personalización necesitas? (serigrafía, bordado, UV, láser, etc.)",
}

// collectOrder is the linear happy path of the collection steps.
var collectOrder = []models.Step{
	models.StepCollectName,
	models.StepCollectEmpresa,
	models.StepCollectCiudad,
	models.StepCollectCorreo,
	models.StepCollectProducto,
	models.StepCollectCantidad,
	models.StepCollectFecha,
	models.StepCollectPresupuesto,
	models.StepCollectPersonalizacion,
}

// correctableFields is the numbered menu of correct_data.
var correctableFields = []struct {
	field   models.Field
	label   string
	aliases []string
}{
	{models.FieldNombre, "Nombre", []string{"nombre"}},
	{models.FieldEmpresa, "Empresa", []string{"empresa"}},
	{models.FieldCiudad, "Ciudad", []string{"ciudad"}},
	{models.FieldCorreo, "Correo", []string{"correo", "email", "mail"}},
	{models.FieldProducto, "Producto", []string{"producto"}},
	{models.FieldCantidad, "Cantidad", []string{"cantidad", "unidades"}},
	{models.FieldFechaEntrega, "Fecha de entrega", []string{"fecha", "entrega"}},
	{models.FieldPresupuesto, "Presupuesto", []string{"presupuesto"}},
	{models.FieldPersonalizacion, "Personalización", []string{"personaliz"}},
}

var (
	affirmations = map[string]bool{"si": true, "sí": true, "s": true, "correcto": true, "ok": true, "yes": true, "está bien": true, "esta bien": true, "confirmo": true}
	negations    = map[string]bool{"no": true, "n": true, "corregir": true, "cambiar": true}
)

// StateMachine is the deterministic keyword strategy.
type StateMachine struct {
	extractor Extractor
}

// NewStateMachine creates the keyword strategy. A nil extractor selects
// KeywordExtractor.
func NewStateMachine(extractor Extractor) *StateMachine {
	if extractor == nil {
		extractor = KeywordExtractor{}
	}
	return &StateMachine{extractor: extractor}
}

// Name implements ConversationStrategy.
func (m *StateMachine) Name() string { return StrategyKeyword }

// Decide implements ConversationStrategy.
func (m *StateMachine) Decide(ctx context.Context, turn Turn) (Decision, error) {
	st := turn.State
	d := Decision{
		NextStep:        st.CurrentStep,
		Data:            st.CollectedData.Clone(),
		Category:        st.Category,
		MenuAttempts:    st.MenuAttempts,
		CorrectingField: st.CorrectingField,
	}

	step := st.CurrentStep
	if !models.IsValidStep(step) {
		slog.Warn("StateMachine.Decide: unknown step, restarting at greeting", "phone", st.PhoneNumber, "step", step)
		step = models.StepGreeting
	}

	switch {
	case step == models.StepGreeting:
		d.NextStep = models.StepIdentifyNeed
		d.MenuAttempts = 0
		d.Actions = []Action{SendText(WelcomeMessage)}
	case step == models.StepIdentifyNeed:
		m.identifyNeed(st, turn.Message, &d)
	case isCollectStep(step):
		m.collect(step, turn.Message, &d)
	case step == models.StepConfirmData:
		confirm(turn.Message, &d)
	case step == models.StepCorrectData:
		correct(turn.Message, &d)
	case step == models.StepTransferHuman:
		d.NextStep = models.StepTransferHuman
		if !st.TransferredToHuman {
			// an interrupted handoff is completed on the next message
			d.Actions = []Action{TransferHuman(TransferMessage)}
		}
	}
	return d, nil
}

func (m *StateMachine) identifyNeed(st *models.ConversationState, message string, d *Decision) {
	rt, ok := MenuSelection(message)
	if !ok {
		if c := ClassifyIntent(message); c != models.RequestGeneral {
			rt, ok = c, true
		}
	}
	if !ok && st.RequestType != nil && *st.RequestType != models.RequestGeneral {
		rt, ok = *st.RequestType, true
	}
	if !ok {
		if d.MenuAttempts == 0 {
			d.MenuAttempts = 1
			d.NextStep = models.StepIdentifyNeed
			d.Actions = []Action{SendText(MenuRepromptMessage)}
			return
		}
		rt = models.RequestGeneral
	}

	d.RequestType = &rt
	d.Category = string(rt)
	d.MenuAttempts = 0
	next := nextCollectStep(d.Data, "")
	d.NextStep = next
	question := promptFor(next, d.Data)

	switch rt {
	case models.RequestCatalog:
		keyword, _ := MentionsProduct(message)
		d.Actions = []Action{SendCatalog(keyword), SendText(CatalogFollowUpPrefix + " " + lowerFirst(question))}
	case models.RequestQuote:
		d.Actions = []Action{SendText(QuoteStartMessage + " " + question)}
	case models.RequestCorporate:
		d.Actions = []Action{SendText(CorporateStartMessage + " " + question)}
	case models.RequestUrgent:
		d.Actions = []Action{SendText(UrgentStartMessage + " " + question)}
	case models.RequestIdeas:
		d.Actions = []Action{SendText(IdeasPromptMessage + "\n\n" + question)}
	case models.RequestSeasonal:
		d.Actions = []Action{SendText(SeasonalPromptMessage + "\n\n" + question)}
	default:
		d.Actions = []Action{SendText(GeneralStartMessage + "\n\n" + question)}
	}
}

func (m *StateMachine) collect(step models.Step, message string, d *Decision) {
	field := StepField[step]
	d.Data = m.extractor.Extract(message, step, d.Data)
	// what this message alone yields for the target field
	probe := m.extractor.Extract(message, step, models.CollectedData{})

	if step == models.StepCollectCorreo && !d.Data.Has(models.FieldProducto) {
		if term, ok := MentionsProduct(message); ok {
			d.Data.Set(models.FieldProducto, term)
		}
	}

	if !probe.Has(field) {
		d.NextStep = step
		text := stepQuestions[step]
		if field == models.FieldCantidad {
			text = QuantityRetryMessage + " " + text
		}
		d.Actions = []Action{SendText(text)}
		return
	}

	// a new product description without codes replaces any earlier codes
	if step == models.StepCollectProducto && !probe.Has(models.FieldCodigosProducto) && d.Data.Has(models.FieldCodigosProducto) {
		delete(d.Data, models.FieldCodigosProducto)
		d.Cleared = append(d.Cleared, models.FieldCodigosProducto)
	}

	if d.CorrectingField != "" {
		d.CorrectingField = ""
		d.NextStep = models.StepConfirmData
		d.Actions = []Action{SendText(confirmationPrompt(d.Data))}
		return
	}

	next := nextCollectStep(d.Data, step)
	d.NextStep = next
	d.Actions = []Action{SendText(promptFor(next, d.Data))}
}

func confirm(message string, d *Decision) {
	reply := normalizeReply(message)
	switch {
	case affirmations[reply]:
		d.NextStep = models.StepTransferHuman
		d.Actions = []Action{GenerateQuote(), TransferHuman(TransferMessage)}
	case negations[reply]:
		d.NextStep = models.StepCorrectData
		d.Actions = []Action{SendText(correctionMenu())}
	default:
		d.NextStep = models.StepConfirmData
		d.Actions = []Action{SendText(confirmationPrompt(d.Data))}
	}
}

func correct(message string, d *Decision) {
	field, ok := correctionChoice(message)
	if !ok {
		d.NextStep = models.StepCorrectData
		d.Actions = []Action{SendText(CorrectRepromptMessage + " " + correctionMenu())}
		return
	}
	step := stepForField(field)
	d.CorrectingField = field
	d.NextStep = step
	d.Actions = []Action{SendText(stepQuestions[step])}
}

func correctionChoice(message string) (models.Field, bool) {
	if n, ok := menuNumber(message, len(correctableFields)); ok {
		return correctableFields[n-1].field, true
	}
	reply := normalizeReply(message)
	if reply == "" {
		return "", false
	}
	for _, c := range correctableFields {
		for _, alias := range c.aliases {
			if strings.Contains(reply, alias) {
				return c.field, true
			}
		}
	}
	return "", false
}

// nextCollectStep returns the first collection step after `after` whose field
// is still empty, or confirm_data when every field is filled. An empty
// `after` searches from the start.
func nextCollectStep(data models.CollectedData, after models.Step) models.Step {
	started := after == ""
	for _, s := range collectOrder {
		if !started {
			if s == after {
				started = true
			}
			continue
		}
		if !data.Has(StepField[s]) {
			return s
		}
	}
	return models.StepConfirmData
}

func promptFor(step models.Step, data models.CollectedData) string {
	if step == models.StepConfirmData {
		return confirmationPrompt(data)
	}
	return stepQuestions[step]
}

func isCollectStep(step models.Step) bool {
	_, ok := StepField[step]
	return ok
}

func stepForField(field models.Field) models.Step {
	for step, f := range StepField {
		if f == field {
			return step
		}
	}
	return models.StepCollectName
}

func confirmationPrompt(data models.CollectedData) string {
	var b strings.Builder
	b.WriteString("Por favor confirma tus datos:\n\n")
	for _, c := range correctableFields {
		v := data.Get(c.field)
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", c.label, v)
	}
	b.WriteString("\n¿Los datos son correctos? Responde sí o no.")
	return b.String()
}

func correctionMenu() string {
	var b strings.Builder
	b.WriteString("¿Qué dato deseas corregir?\n")
	for i, c := range correctableFields {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.label)
	}
	return strings.TrimRight(b.String(), "\n")
}

// lowerFirst lowercases the first letter after any leading ¿ or ¡.
func lowerFirst(s string) string {
	r := []rune(s)
	for i, c := range r {
		if c == '¿' || c == '¡' {
			continue
		}
		r[i] = []rune(strings.ToLower(string(c)))[0]
		break
	}
	return string(r)
}
