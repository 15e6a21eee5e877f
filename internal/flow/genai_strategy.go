package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// salesSystemPrompt instructs the model to act as the sales advisor and to
// answer with a single JSON object.
const salesSystemPrompt = `Eres un asesor comercial de Gimmicks Marketing Services. Tu nombre es Ana, asistente virtual.
Gimmicks es una empresa ecuatoriana especializada en productos promocionales y publicitarios.

PERSONALIDAD:
- Hablas como persona real: cálido, amigable, profesional
- Mensajes CORTOS y claros (máximo 400 caracteres)
- Máximo 1 emoji por mensaje
- NO uses formato markdown
- Tutea al cliente

OBJETIVO COMERCIAL:
Guía SIEMPRE al cliente hacia una acción comercial:
catálogo -> códigos de producto -> datos para cotizar -> cotización -> pedido
Si pregunta temas generales (horarios, envíos, pagos, facturación), respóndele y redirige con naturalidad.

FLUJO DE VENTA:
1. Entiende qué necesita el cliente
2. Si pide un producto o categoría, indica catalog_search con una palabra clave
3. Pide que elija códigos: "Revísalo y dime los códigos que te gusten para cotizarlos"
4. Con códigos, pide: cantidad, ciudad, fecha límite, personalización, si necesita diseño, correo y empresa
5. Con los datos mínimos marca needs_quote=true

DATOS A RECOPILAR (claves de extracted_data):
nombre, empresa, ciudad, correo, producto, codigos_producto, cantidad, fecha_entrega, presupuesto, personalizacion, necesita_diseno

needs_quote solo es true con AL MENOS: correo + codigos_producto (o producto claro) + cantidad.

CALIFICACIÓN DEL LEAD:
- caliente: tiene códigos, cantidad, fecha, presupuesto o urgencia
- tibio: interesado, pidió catálogo, está eligiendo
- frio: pregunta general, sin intención clara

Responde SIEMPRE en JSON válido:
{
  "response": "tu mensaje natural para el cliente",
  "extracted_data": {},
  "catalog_search": null,
  "intent": "cotizacion_directa|solicitud_catalogo|consulta_ideas|pedido_estacional|corporativo|urgente|pregunta_general",
  "lead_quality": "tibio",
  "category": "cotizacion_directa|solicitud_catalogo|consulta_ideas|pedido_estacional|corporativo|urgente|pregunta_general",
  "needs_quote": false,
  "needs_human": false,
  "conversation_summary": "resumen breve"
}
catalog_search: una palabra clave si el cliente pide ver una categoría ("termos" -> "termo"), si no null.`

const (
	promptSampleProducts = 10
	promptHistoryLimit   = 8
	plainReplyLimit      = 1000
)

// GenAIFallbackReply is sent when the model answered with an empty response.
const GenAIFallbackReply = "¡Gracias por escribirnos! ¿Cómo puedo ayudarte?"

// JSONGenerator produces a JSON completion for a prompt pair. *genai.Client
// satisfies it. The raw completion is returned even when decoding into v
// fails.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, v interface{}) (string, error)
}

// genaiReply is the structured output requested from the model.
type genaiReply struct {
	Response            string                 `json:"response"`
	ExtractedData       map[string]interface{} `json:"extracted_data"`
	CatalogSearch       *string                `json:"catalog_search"`
	Intent              string                 `json:"intent"`
	LeadQuality         string                 `json:"lead_quality"`
	Category            string                 `json:"category"`
	NeedsQuote          bool                   `json:"needs_quote"`
	NeedsHuman          bool                   `json:"needs_human"`
	ConversationSummary string                 `json:"conversation_summary"`
}

// GenAIStrategy lets a language model lead the conversation.
type GenAIStrategy struct {
	llm JSONGenerator
}

// NewGenAIStrategy creates the model-driven strategy.
func NewGenAIStrategy(llm JSONGenerator) *GenAIStrategy {
	return &GenAIStrategy{llm: llm}
}

// Name implements ConversationStrategy.
func (g *GenAIStrategy) Name() string { return StrategyGenAI }

// Decide implements ConversationStrategy.
func (g *GenAIStrategy) Decide(ctx context.Context, turn Turn) (Decision, error) {
	st := turn.State
	d := Decision{
		NextStep:        st.CurrentStep,
		Data:            st.CollectedData.Clone(),
		LeadQuality:     st.LeadQuality,
		Category:        st.Category,
		MenuAttempts:    st.MenuAttempts,
		CorrectingField: st.CorrectingField,
	}
	if !models.IsValidStep(d.NextStep) {
		d.NextStep = models.StepIdentifyNeed
	}

	userPrompt, err := g.userPrompt(ctx, turn)
	if err != nil {
		return Decision{}, err
	}

	var reply genaiReply
	raw, err := g.llm.GenerateJSON(ctx, salesSystemPrompt, userPrompt, &reply)
	if err != nil {
		text := strings.TrimSpace(raw)
		if text == "" {
			return Decision{}, fmt.Errorf("genai decision failed: %w", err)
		}
		slog.Warn("GenAIStrategy.Decide: unstructured completion, replying with plain text", "phone", st.PhoneNumber, "error", err)
		if r := []rune(text); len(r) > plainReplyLimit {
			text = string(r[:plainReplyLimit])
		}
		d.Actions = []Action{SendText(text)}
		return d, nil
	}

	for k, v := range reply.ExtractedData {
		if v == nil {
			continue
		}
		d.Data.Set(models.Field(k), fmt.Sprint(v))
	}

	if q := models.Classification(strings.ToLower(reply.LeadQuality)); models.IsValidClassification(q) {
		d.LeadQuality = q
	}
	if c := strings.TrimSpace(reply.Category); c != "" {
		d.Category = c
	}
	if rt := models.RequestType(reply.Intent); models.IsValidRequestType(rt) && rt != models.RequestGeneral {
		d.RequestType = &rt
	}
	if d.NextStep == models.StepGreeting {
		d.NextStep = models.StepIdentifyNeed
	}

	text := strings.TrimSpace(reply.Response)
	if text == "" {
		text = GenAIFallbackReply
	}
	d.Actions = append(d.Actions, SendText(text))
	if reply.CatalogSearch != nil {
		if kw := strings.TrimSpace(*reply.CatalogSearch); kw != "" && !st.HasSentCatalog(CatalogKey(kw)) {
			d.Actions = append(d.Actions, SendCatalog(kw))
		}
	}
	if reply.NeedsQuote {
		if hasQuoteMinimum(d.Data) {
			d.Actions = append(d.Actions, GenerateQuote())
		} else {
			slog.Debug("GenAIStrategy.Decide: quote requested without minimum data", "phone", st.PhoneNumber)
		}
	}
	if reply.NeedsHuman {
		d.NextStep = models.StepTransferHuman
		d.Actions = append(d.Actions, TransferHuman(TransferMessage))
	}
	return d, nil
}

// hasQuoteMinimum reports whether data is enough to price a quote.
func hasQuoteMinimum(data models.CollectedData) bool {
	return data.Has(models.FieldCorreo) && hasProductInterest(data) && data.Has(models.FieldCantidad)
}

func (g *GenAIStrategy) userPrompt(ctx context.Context, turn Turn) (string, error) {
	st := turn.State
	var b strings.Builder

	b.WriteString("EJEMPLOS DE PRODUCTOS EN CATÁLOGO:\n")
	if turn.Catalog != nil {
		sample, err := turn.Catalog.SampleProducts(ctx, promptSampleProducts)
		if err != nil {
			return "", fmt.Errorf("catalog sample failed: %w", err)
		}
		for _, p := range sample {
			fmt.Fprintf(&b, "- %s: %s\n", p.Code, p.Name)
		}
	}

	if len(st.CatalogSent) > 0 {
		b.WriteString("\nCatálogos ya enviados: " + strings.Join(st.CatalogSent, ", ") + "\n")
	} else {
		b.WriteString("\nNo se ha enviado catálogo aún.\n")
	}

	b.WriteString("\nHISTORIAL:\n")
	history := turn.History
	if len(history) > promptHistoryLimit {
		history = history[len(history)-promptHistoryLimit:]
	}
	for _, m := range history {
		who := "Cliente"
		if m.Sender == models.SenderBot {
			who = "Ana"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Body)
	}

	var parts []string
	for _, f := range models.AllFields {
		if st.CollectedData.Has(f) {
			parts = append(parts, fmt.Sprintf("%s: %s", f, st.CollectedData.Get(f)))
		}
	}
	if len(parts) > 0 {
		b.WriteString("\nDatos recopilados: " + strings.Join(parts, ", ") + "\n")
	}

	var missing []string
	if !hasProductInterest(st.CollectedData) {
		missing = append(missing, "producto o codigos")
	}
	for _, f := range []models.Field{models.FieldCorreo, models.FieldCantidad} {
		if !st.CollectedData.Has(f) {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		b.WriteString("Datos que FALTAN: " + strings.Join(missing, ", ") + ".\n")
	} else {
		b.WriteString("Tienes todos los datos. Puedes marcar needs_quote=true.\n")
	}

	b.WriteString("\nMENSAJE DEL CLIENTE: " + turn.Message)
	return b.String(), nil
}
