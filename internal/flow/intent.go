// Package flow implements the lead-qualification dialogue: intent
// classification, field extraction, the conversation strategies and the
// engine that runs one inbound message end to end.
package flow

import (
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

type intentKeywords struct {
	requestType models.RequestType
	keywords    []string
}

// intentTable is evaluated in order and the first match wins.
var intentTable = []intentKeywords{
	{models.RequestQuote, []string{"cotiza", "cotización", "cotizacion", "proforma", "precio", "cuánto cuesta", "cuanto cuesta", "cuánto vale", "cuanto vale", "costo"}},
	{models.RequestCatalog, []string{"catálogo", "catalogo", "productos", "qué tienen", "que tienen", "qué venden", "que venden", "opciones", "muéstrame", "muestrame"}},
	{models.RequestIdeas, []string{"idea", "sugerencia", "sugieres", "recomienda", "recomendación", "recomendacion", "no sé qué", "no se que"}},
	{models.RequestSeasonal, []string{"navidad", "navideñ", "naviden", "día de la madre", "dia de la madre", "día del padre", "dia del padre", "san valentín", "san valentin", "fin de año", "temporada"}},
	{models.RequestCorporate, []string{"corporativ", "ejecutiv", "empresa", "institucional", "evento", "kit de bienvenida"}},
	{models.RequestUrgent, []string{"urgente", "urgencia", "para hoy", "para mañana", "lo antes posible", "cuanto antes", "rápido", "rapido"}},
}

// ClassifyIntent maps a message to a request type by keyword. Unmatched
// input yields RequestGeneral.
func ClassifyIntent(message string) models.RequestType {
	text := strings.ToLower(message)
	for _, entry := range intentTable {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.requestType
			}
		}
	}
	return models.RequestGeneral
}

// menuOptions lists the request types behind the numbered welcome menu.
var menuOptions = []models.RequestType{
	models.RequestQuote,
	models.RequestCatalog,
	models.RequestIdeas,
	models.RequestSeasonal,
	models.RequestCorporate,
	models.RequestUrgent,
}

// MenuSelection interprets a standalone menu number 1-6.
func MenuSelection(message string) (models.RequestType, bool) {
	n, ok := menuNumber(message, len(menuOptions))
	if !ok {
		return "", false
	}
	return menuOptions[n-1], true
}

// menuNumber parses a standalone number between 1 and max.
func menuNumber(message string, max int) (int, bool) {
	s := normalizeReply(message)
	if len(s) != 1 || s[0] < '1' || s[0] > '9' {
		return 0, false
	}
	n := int(s[0] - '0')
	if n > max {
		return 0, false
	}
	return n, true
}

// normalizeReply lowercases and trims whitespace and surrounding punctuation.
func normalizeReply(message string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(message)), " \t\r\n.,;:!¡?¿\"'()-")
}
