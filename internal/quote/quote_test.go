package quote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
	"github.com/aicreator-emprenovus/gimmicks-crm/internal/store"
)

func TestDiscountBoundaries(t *testing.T) {
	tests := []struct {
		qty  int
		want int
	}{
		{1, 0}, {99, 0}, {100, 10}, {299, 10}, {300, 15}, {1000, 15},
	}
	for _, tt := range tests {
		if got := DiscountPercent(tt.qty); got != tt.want {
			t.Errorf("DiscountPercent(%d) = %d, want %d", tt.qty, got, tt.want)
		}
	}
}

func TestUnitPriceRounding(t *testing.T) {
	if got := UnitPrice(1000, 10); got != 900 {
		t.Errorf("expected 900, got %d", got)
	}
	// 1.15 * 0.85 = 0.9775 -> 0.98
	if got := UnitPrice(115, 15); got != 98 {
		t.Errorf("expected half-up 98, got %d", got)
	}
	if got := UnitPrice(0, 10); got != 0 {
		t.Errorf("unpriced products stay at 0, got %d", got)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[int64]string{
		0:        PriceUnavailable,
		-5:       PriceUnavailable,
		5:        "$0,05",
		900:      "$9,00",
		90000:    "$900,00",
		123456:   "$1.234,56",
		12345678: "$123.456,78",
	}
	for cents, want := range tests {
		if got := FormatPrice(cents); got != want {
			t.Errorf("FormatPrice(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestDeliveryEstimate(t *testing.T) {
	tests := map[string]string{
		"lo necesito urgente":  ExpeditedDelivery,
		"para mañana":          ExpeditedDelivery,
		"cuanto antes por fa":  ExpeditedDelivery,
		"ASAP":                 ExpeditedDelivery,
		"fin de mayo":          StandardDelivery,
		"15 de diciembre":      StandardDelivery,
		"para la playa en mes": StandardDelivery,
	}
	for fecha, want := range tests {
		if got := DeliveryEstimate(fecha); got != want {
			t.Errorf("DeliveryEstimate(%q) = %q, want %q", fecha, got, want)
		}
	}
}

func seededStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	s := store.NewInMemoryStore()
	ctx := context.Background()
	for _, p := range []models.Product{
		{Code: "TR-01", Name: "Termo acero", Description: "Termo de 500ml", PriceCents: 1000},
		{Code: "GR-10", Name: "Gorra bordada", PriceCents: 500},
		{Code: "LL-05", Name: "Llavero metálico", PriceCents: 0},
	} {
		p := p
		if err := s.AddProduct(ctx, &p); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return s
}

func TestGenerateSingleQuantity(t *testing.T) {
	s := seededStore(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(s, s, WithClock(func() time.Time { return fixed }))
	data := models.CollectedData{
		models.FieldNombre:          "Ana",
		models.FieldCorreo:          "ana@empresa.ec",
		models.FieldCodigosProducto: "tr-01",
		models.FieldCantidad:        "100",
		models.FieldFechaEntrega:    "15 de abril",
	}
	text, q, err := g.Generate(context.Background(), "593990000001", "conv-1", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Items) != 1 {
		t.Fatalf("expected a single line, got %d", len(q.Items))
	}
	it := q.Items[0]
	if it.UnitPriceCents != 900 || it.SubtotalCents != 90000 || it.DiscountPercent != 10 {
		t.Errorf("unexpected pricing: %+v", it)
	}
	if q.TotalCents != 90000 || q.DeliveryEstimate != StandardDelivery || !q.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected quote: %+v", q)
	}
	if !strings.Contains(text, "$9,00") || !strings.Contains(text, "$900,00") || !strings.Contains(text, "ana@empresa.ec") {
		t.Errorf("display text missing prices or email:\n%s", text)
	}
	stored, err := s.GetQuote(context.Background(), q.ID)
	if err != nil || stored.TotalCents != 90000 {
		t.Errorf("quote must be persisted before returning: %v", err)
	}
}

func TestGenerateTiersUseReferenceTotal(t *testing.T) {
	s := seededStore(t)
	g := NewGenerator(s, s)
	data := models.CollectedData{models.FieldProducto: "gorra", models.FieldCantidad: "varias"}
	text, q, err := g.Generate(context.Background(), "593990000002", "conv-2", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Items) != 3 {
		t.Fatalf("expected three tiers, got %d", len(q.Items))
	}
	// 100 u x $4,50
	if q.TotalCents != 45000 {
		t.Errorf("expected reference tier total 45000, got %d", q.TotalCents)
	}
	if q.Items[2].DiscountPercent != 15 || q.Items[2].UnitPriceCents != 425 {
		t.Errorf("unexpected 300 tier: %+v", q.Items[2])
	}
	if !strings.Contains(text, "Total referencial") {
		t.Errorf("tier quotes show a reference total:\n%s", text)
	}
}

func TestGenerateFallsBackToSample(t *testing.T) {
	s := seededStore(t)
	g := NewGenerator(s, s)
	text, q, err := g.Generate(context.Background(), "593990000003", "conv-3", models.CollectedData{
		models.FieldProducto: "globos", models.FieldCantidad: "50", models.FieldFechaEntrega: "urgente",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Items) != 3 || q.Notes == "" {
		t.Errorf("expected sampled products with a note, got %d items", len(q.Items))
	}
	if q.DeliveryEstimate != ExpeditedDelivery {
		t.Errorf("expected expedited delivery, got %s", q.DeliveryEstimate)
	}
	if !strings.Contains(text, PriceUnavailable) {
		t.Errorf("unpriced product should show %q:\n%s", PriceUnavailable, text)
	}
}

type failingQuotes struct{ store.QuoteStore }

func (failingQuotes) CreateQuote(ctx context.Context, q *models.Quote) error {
	return errors.New("disk full")
}

func TestGeneratePersistFailure(t *testing.T) {
	s := seededStore(t)
	g := NewGenerator(s, failingQuotes{})
	_, _, err := g.Generate(context.Background(), "1", "c", models.CollectedData{models.FieldCantidad: "10"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected wrapped persist error, got %v", err)
	}
}

func TestParseQuantity(t *testing.T) {
	if n, ok := ParseQuantity("150 unidades"); !ok || n != 150 {
		t.Errorf("expected 150, got %d %v", n, ok)
	}
	if _, ok := ParseQuantity("varias"); ok {
		t.Error("words must not parse as a quantity")
	}
}
