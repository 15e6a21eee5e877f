package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// keywordStopwords are connectors too common to narrow a product search.
var keywordStopwords = map[string]bool{
	"con": true, "del": true, "los": true, "las": true, "una": true,
	"unos": true, "unas": true, "para": true, "por": true, "que": true,
}

// keywordWords splits a catalog keyword into lowercase search words, dropping
// words shorter than three letters and common connectors.
func keywordWords(keyword string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(strings.TrimSpace(keyword))) {
		if utf8.RuneCountInString(w) < 3 || keywordStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// productMatchesWords reports whether any word occurs in the product's name,
// description or categories.
func productMatchesWords(p models.Product, words []string) bool {
	haystack := strings.ToLower(p.Name + " " + p.Description + " " + strings.Join(p.Categories, " "))
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

// normalizeCode canonicalizes a product code for prefix lookups.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// escapeLike escapes LIKE wildcards so codes and keywords match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// marshalJSON encodes v for a JSON/TEXT column.
func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(b), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanConversationState scans a conversation_states row.
func scanConversationState(row scanner) (*models.ConversationState, error) {
	var s models.ConversationState
	var requestType, category, correcting sql.NullString
	var dataJSON, catalogJSON string
	err := row.Scan(
		&s.PhoneNumber, &s.ConversationID, &s.Strategy, &s.CurrentStep, &requestType,
		&dataJSON, &catalogJSON, &s.QuoteGenerated, &s.TransferredToHuman, &s.CourtesySent,
		&s.LeadQuality, &category, &s.MenuAttempts, &correcting, &s.MessageCount,
		&s.LastInteraction, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if requestType.Valid && requestType.String != "" {
		rt := models.RequestType(requestType.String)
		s.RequestType = &rt
	}
	s.Category = category.String
	s.CorrectingField = models.Field(correcting.String)
	s.CollectedData = models.CollectedData{}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &s.CollectedData); err != nil {
			return nil, fmt.Errorf("decode collected_data: %w", err)
		}
	}
	s.CatalogSent = []string{}
	if catalogJSON != "" {
		if err := json.Unmarshal([]byte(catalogJSON), &s.CatalogSent); err != nil {
			return nil, fmt.Errorf("decode catalog_sent: %w", err)
		}
	}
	return &s, nil
}

// scanLead scans a leads row.
func scanLead(row scanner) (*models.Lead, error) {
	var l models.Lead
	var name, aiCategory, empresa, ciudad, correo, producto, codigos, cantidad, fecha, presupuesto, personalizacion, notes sql.NullString
	var lastMessageAt sql.NullTime
	err := row.Scan(
		&l.ID, &l.PhoneNumber, &name, &l.Source, &l.Status, &l.FunnelStage, &l.Classification,
		&aiCategory, &empresa, &ciudad, &correo, &producto, &codigos, &cantidad, &fecha,
		&presupuesto, &personalizacion, &notes, &l.CreatedAt, &l.UpdatedAt, &lastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	l.Name = name.String
	l.AICategory = aiCategory.String
	l.Empresa = empresa.String
	l.Ciudad = ciudad.String
	l.Correo = correo.String
	l.ProductoInteres = producto.String
	l.CodigosProducto = codigos.String
	l.CantidadEstimada = cantidad.String
	l.FechaEntrega = fecha.String
	l.Presupuesto = presupuesto.String
	l.Personalizacion = personalizacion.String
	l.Notes = notes.String
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		l.LastMessageAt = &t
	}
	return &l, nil
}

// scanQuote scans a quotes row.
func scanQuote(row scanner) (*models.Quote, error) {
	var q models.Quote
	var itemsJSON string
	var clientName, clientEmpresa, clientCorreo, clientCiudad, cantidad, fecha, personalizacion, diseno, notes sql.NullString
	err := row.Scan(
		&q.ID, &q.ConversationID, &q.PhoneNumber, &q.Status, &clientName, &clientEmpresa,
		&clientCorreo, &clientCiudad, &itemsJSON, &cantidad, &fecha, &personalizacion,
		&diseno, &q.TotalCents, &q.DeliveryEstimate, &notes, &q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.ClientName = clientName.String
	q.ClientEmpresa = clientEmpresa.String
	q.ClientCorreo = clientCorreo.String
	q.ClientCiudad = clientCiudad.String
	q.Cantidad = cantidad.String
	q.FechaEntrega = fecha.String
	q.Personalizacion = personalizacion.String
	q.NecesitaDiseno = diseno.String
	q.Notes = notes.String
	q.Items = []models.QuoteItem{}
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &q.Items); err != nil {
			return nil, fmt.Errorf("decode quote items: %w", err)
		}
	}
	return &q, nil
}

// scanProduct scans a products row.
func scanProduct(row scanner) (models.Product, error) {
	var p models.Product
	var description, imageURL sql.NullString
	var categoriesJSON string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &description, &categoriesJSON, &p.PriceCents, &p.Stock, &imageURL, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.Description = description.String
	p.ImageURL = imageURL.String
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &p.Categories); err != nil {
			return p, fmt.Errorf("decode categories: %w", err)
		}
	}
	return p, nil
}
