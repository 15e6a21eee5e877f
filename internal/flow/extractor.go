package flow

import (
	"regexp"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// Extractor turns one free-text reply into collected data updates.
// Implementations must not mutate data and return an updated copy.
type Extractor interface {
	Extract(message string, step models.Step, data models.CollectedData) models.CollectedData
}

// StepField maps each collection step to the field it fills.
var StepField = map[models.Step]models.Field{
	models.StepCollectName:            models.FieldNombre,
	models.StepCollectEmpresa:         models.FieldEmpresa,
	models.StepCollectCiudad:          models.FieldCiudad,
	models.StepCollectCorreo:          models.FieldCorreo,
	models.StepCollectProducto:        models.FieldProducto,
	models.StepCollectCantidad:        models.FieldCantidad,
	models.StepCollectFecha:           models.FieldFechaEntrega,
	models.StepCollectPresupuesto:     models.FieldPresupuesto,
	models.StepCollectPersonalizacion: models.FieldPersonalizacion,
}

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	digitRunPattern = regexp.MustCompile(`[0-9]+`)
	codePattern     = regexp.MustCompile(`\b[A-Za-z]{1,4}-?[0-9]{1,5}\b`)
)

// KeywordExtractor is the regex based extractor used by the state machine.
type KeywordExtractor struct{}

// Extract applies, in order: the email scan, the step target field (plus any
// catalog codes at collect_producto), and the literal correo fallback.
func (KeywordExtractor) Extract(message string, step models.Step, data models.CollectedData) models.CollectedData {
	out := data.Clone()
	email := FindEmail(message)
	if email != "" {
		out.Set(models.FieldCorreo, email)
	}

	field, ok := StepField[step]
	if ok && field != models.FieldCorreo {
		if field == models.FieldCantidad {
			if qty := FirstNumber(message); qty != "" {
				out.Set(field, qty)
			}
		} else {
			out.Set(field, message)
		}
	}
	if step == models.StepCollectProducto {
		if codes := FindProductCodes(message); len(codes) > 0 {
			out.Set(models.FieldCodigosProducto, strings.Join(codes, ", "))
		}
	}

	if step == models.StepCollectCorreo && email == "" {
		out.Set(models.FieldCorreo, message)
	}
	return out
}

// FindEmail returns the first email-shaped token in message.
func FindEmail(message string) string {
	return emailPattern.FindString(message)
}

// FirstNumber returns the first run of digits outside any email address.
func FirstNumber(message string) string {
	return digitRunPattern.FindString(emailPattern.ReplaceAllString(message, " "))
}

// FindProductCodes returns the catalog-code shaped tokens of message
// (for example GR-10 or tr02), upper-cased, outside any email address.
func FindProductCodes(message string) []string {
	var codes []string
	for _, c := range codePattern.FindAllString(emailPattern.ReplaceAllString(message, " "), -1) {
		codes = append(codes, strings.ToUpper(c))
	}
	return codes
}

// productTerms maps promotional product words to their catalog keyword.
// Longer phrases come first so they win over their parts.
var productTerms = []struct {
	match   string
	keyword string
}{
	{"power bank", "power bank"},
	{"tomatodo", "tomatodo"},
	{"termo", "termo"},
	{"botella", "botella"},
	{"taza", "taza"},
	{"jarro", "jarro"},
	{"mug", "mug"},
	{"gorra", "gorra"},
	{"camiseta", "camiseta"},
	{"polo", "polo"},
	{"chompa", "chompa"},
	{"chaleco", "chaleco"},
	{"esfero", "esfero"},
	{"bolígrafo", "boligrafo"},
	{"boligrafo", "boligrafo"},
	{"lápiz", "lapiz"},
	{"lapiz", "lapiz"},
	{"libreta", "libreta"},
	{"cuaderno", "cuaderno"},
	{"agenda", "agenda"},
	{"llavero", "llavero"},
	{"mochila", "mochila"},
	{"bolso", "bolso"},
	{"paraguas", "paraguas"},
	{"usb", "usb"},
	{"lanyard", "lanyard"},
	{"cordón", "lanyard"},
}

// MentionsProduct reports the catalog keyword of the first product term in message.
func MentionsProduct(message string) (string, bool) {
	text := strings.ToLower(message)
	for _, t := range productTerms {
		if strings.Contains(text, t.match) {
			return t.keyword, true
		}
	}
	return "", false
}
