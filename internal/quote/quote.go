// Package quote prices collected conversation data against the catalog and
// persists the resulting quote.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
	"github.com/google/uuid"
)

// Delivery windows.
const (
	ExpeditedDelivery = "3 a 5 días hábiles"
	StandardDelivery  = "8 a 12 días hábiles"
)

const (
	productLookupLimit = 3
	sampleLimit        = 3
	descriptionLimit   = 100
)

// Tiers quoted when no single quantity is known. ReferenceTier drives the total.
var (
	Tiers         = []int{50, 100, 300}
	ReferenceTier = 100
)

var (
	urgencyWords   = []string{"urgente", "pronto", "rápido", "rapido", "express", "hoy", "mañana", "manana", "ya", "asap"}
	urgencyPhrases = []string{"cuanto antes", "cuánto antes", "lo antes posible"}
	codeSeparators = regexp.MustCompile(`[,\s]+`)
	leadingNumber  = regexp.MustCompile(`[0-9]+`)
)

// DiscountPercent returns the volume discount for qty units.
func DiscountPercent(qty int) int {
	switch {
	case qty >= 300:
		return 15
	case qty >= 100:
		return 10
	default:
		return 0
	}
}

// UnitPrice applies pct off base, rounding half up to the cent.
func UnitPrice(baseCents int64, pct int) int64 {
	if baseCents <= 0 {
		return 0
	}
	return (baseCents*int64(100-pct) + 50) / 100
}

// DeliveryEstimate picks the expedited window when fecha mentions urgency.
func DeliveryEstimate(fecha string) string {
	text := strings.ToLower(fecha)
	for _, p := range urgencyPhrases {
		if strings.Contains(text, p) {
			return ExpeditedDelivery
		}
	}
	words := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for _, u := range urgencyWords {
			if w == u {
				return ExpeditedDelivery
			}
		}
	}
	return StandardDelivery
}

// ParseQuantity returns the first integer in cantidad.
func ParseQuantity(cantidad string) (int, bool) {
	digits := leadingNumber.FindString(cantidad)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Generator builds and persists quotes.
type Generator struct {
	catalog store.CatalogReader
	quotes  store.QuoteStore
	now     func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the quote timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a quote generator over the catalog and quote store.
func NewGenerator(catalog store.CatalogReader, quotes store.QuoteStore, opts ...Option) *Generator {
	g := &Generator{catalog: catalog, quotes: quotes, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate prices data, persists the quote and returns the customer-facing
// text. The quote is stored before the text is returned.
func (g *Generator) Generate(ctx context.Context, phone, conversationID string, data models.CollectedData) (string, models.Quote, error) {
	products, sampled, err := g.resolveProducts(ctx, data)
	if err != nil {
		return "", models.Quote{}, err
	}

	q := models.Quote{
		ID:               uuid.NewString(),
		ConversationID:   conversationID,
		PhoneNumber:      phone,
		Status:           models.QuoteStatusPending,
		ClientName:       data.Get(models.FieldNombre),
		ClientEmpresa:    data.Get(models.FieldEmpresa),
		ClientCorreo:     data.Get(models.FieldCorreo),
		ClientCiudad:     data.Get(models.FieldCiudad),
		Cantidad:         data.Get(models.FieldCantidad),
		FechaEntrega:     data.Get(models.FieldFechaEntrega),
		Personalizacion:  data.Get(models.FieldPersonalizacion),
		NecesitaDiseno:   data.Get(models.FieldNecesitaDiseno),
		DeliveryEstimate: DeliveryEstimate(data.Get(models.FieldFechaEntrega)),
		Items:            []models.QuoteItem{},
		CreatedAt:        g.now(),
	}
	if sampled {
		q.Notes = "Sin coincidencias en el catálogo; se cotizan productos sugeridos."
	}

	qty, single := ParseQuantity(q.Cantidad)
	quantities := Tiers
	if single {
		quantities = []int{qty}
	}
	for _, p := range products {
		for _, n := range quantities {
			item := priceItem(p, n)
			q.Items = append(q.Items, item)
			if single || n == ReferenceTier {
				q.TotalCents += item.SubtotalCents
			}
		}
	}

	if err := g.quotes.CreateQuote(ctx, &q); err != nil {
		slog.Error("Generator.Generate: persist failed", "phone", phone, "conversation_id", conversationID, "error", err)
		return "", models.Quote{}, fmt.Errorf("failed to persist quote: %w", err)
	}
	slog.Info("Generator.Generate: quote created", "phone", phone, "quote_id", q.ID, "items", len(q.Items), "total_cents", q.TotalCents)
	return FormatQuote(q, single), q, nil
}

func (g *Generator) resolveProducts(ctx context.Context, data models.CollectedData) ([]models.Product, bool, error) {
	if raw := strings.TrimSpace(data.Get(models.FieldCodigosProducto)); raw != "" {
		codes := codeSeparators.Split(raw, -1)
		products, err := g.catalog.FindProductsByCode(ctx, codes)
		if err != nil {
			return nil, false, fmt.Errorf("product code lookup failed: %w", err)
		}
		if len(products) > 0 {
			return products, false, nil
		}
	}
	if producto := data.Get(models.FieldProducto); producto != "" {
		products, err := g.catalog.FindProductsByKeyword(ctx, producto, productLookupLimit)
		if err != nil {
			return nil, false, fmt.Errorf("product keyword lookup failed: %w", err)
		}
		if len(products) > 0 {
			return products, false, nil
		}
	}
	products, err := g.catalog.SampleProducts(ctx, sampleLimit)
	if err != nil {
		return nil, false, fmt.Errorf("catalog sample failed: %w", err)
	}
	return products, true, nil
}

func priceItem(p models.Product, qty int) models.QuoteItem {
	pct := DiscountPercent(qty)
	unit := UnitPrice(p.PriceCents, pct)
	desc := []rune(p.Description)
	if len(desc) > descriptionLimit {
		desc = desc[:descriptionLimit]
	}
	return models.QuoteItem{
		ProductID:       p.ID,
		Code:            p.Code,
		ProductName:     p.Name,
		Description:     string(desc),
		Quantity:        qty,
		BasePriceCents:  p.PriceCents,
		DiscountPercent: pct,
		UnitPriceCents:  unit,
		SubtotalCents:   unit * int64(qty),
	}
}

// FormatQuote renders a quote for WhatsApp. With tiers, the total is the
// reference tier's.
func FormatQuote(q models.Quote, single bool) string {
	var b strings.Builder
	b.WriteString("COTIZACIÓN GIMMICKS\n")
	if q.ClientName != "" {
		b.WriteString("Cliente: " + q.ClientName)
		if q.ClientEmpresa != "" {
			b.WriteString(" (" + q.ClientEmpresa + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(q.Items) == 0 {
		b.WriteString("Estamos preparando los precios de los productos solicitados.\n")
	}
	n := 0
	lastCode := "\x00"
	for _, it := range q.Items {
		if it.Code != lastCode || single {
			n++
			fmt.Fprintf(&b, "%d. %s (%s)\n", n, it.ProductName, it.Code)
			lastCode = it.Code
		}
		line := fmt.Sprintf("   %d u x %s", it.Quantity, FormatPrice(it.UnitPriceCents))
		if it.UnitPriceCents > 0 {
			line += " = " + FormatPrice(it.SubtotalCents)
		}
		if it.DiscountPercent > 0 {
			line += fmt.Sprintf(" (%d%% desc.)", it.DiscountPercent)
		}
		b.WriteString(line + "\n")
	}

	if len(q.Items) > 0 {
		if single {
			b.WriteString("\nTotal: " + FormatPrice(q.TotalCents) + "\n")
		} else {
			fmt.Fprintf(&b, "\nTotal referencial (%d u): %s\n", ReferenceTier, FormatPrice(q.TotalCents))
		}
	}
	b.WriteString("Entrega estimada: " + q.DeliveryEstimate + "\n")
	if q.ClientCorreo != "" {
		b.WriteString("\nTe enviaremos la cotización formal a " + q.ClientCorreo + ".")
	} else {
		b.WriteString("\nUn asesor te enviará la cotización formal.")
	}
	return b.String()
}
