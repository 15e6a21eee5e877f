package models

import (
	"errors"
	"strings"
	"time"
)

// FunnelStage is a sales funnel stage of a lead.
type FunnelStage string

// Stages of the "pipeline" vocabulary.
const (
	StageLead               FunnelStage = "lead"
	StageClientePotencial   FunnelStage = "cliente_potencial"
	StageCotizacionGenerada FunnelStage = "cotizacion_generada"
	StagePedido             FunnelStage = "pedido"
	StagePerdido            FunnelStage = "perdido"
)

// Additional stages of the "production" vocabulary.
const (
	StageProduccion FunnelStage = "produccion"
	StageEntregado  FunnelStage = "entregado"
	StageCierre     FunnelStage = "cierre"
)

// Lead status values.
const (
	LeadStatusActive   = "active"
	LeadStatusInactive = "inactive"
)

// LeadSourceWhatsApp marks leads created from an inbound WhatsApp message.
const LeadSourceWhatsApp = "whatsapp"

// Lead is the CRM record of a customer, keyed by phone number.
type Lead struct {
	ID               string         `json:"id"`
	PhoneNumber      string         `json:"phone_number"`
	Name             string         `json:"name,omitempty"`
	Source           string         `json:"source"`
	Status           string         `json:"status"`
	FunnelStage      FunnelStage    `json:"funnel_stage"`
	Classification   Classification `json:"classification"`
	AICategory       string         `json:"ai_category,omitempty"`
	Empresa          string         `json:"empresa,omitempty"`
	Ciudad           string         `json:"ciudad,omitempty"`
	Correo           string         `json:"correo,omitempty"`
	ProductoInteres  string         `json:"producto_interes,omitempty"`
	CodigosProducto  string         `json:"codigos_producto,omitempty"`
	CantidadEstimada string         `json:"cantidad_estimada,omitempty"`
	FechaEntrega     string         `json:"fecha_entrega,omitempty"`
	Presupuesto      string         `json:"presupuesto,omitempty"`
	Personalizacion  string         `json:"personalizacion,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastMessageAt    *time.Time     `json:"last_message_at,omitempty"`
}

// ApplyCollectedData copies collected conversation data onto the lead.
// Empty values never clear what the lead already holds.
func (l *Lead) ApplyCollectedData(data CollectedData) {
	assign := func(dst *string, f Field) {
		if data.Has(f) {
			*dst = data.Get(f)
		}
	}
	assign(&l.Name, FieldNombre)
	assign(&l.Empresa, FieldEmpresa)
	assign(&l.Ciudad, FieldCiudad)
	assign(&l.Correo, FieldCorreo)
	assign(&l.ProductoInteres, FieldProducto)
	assign(&l.CodigosProducto, FieldCodigosProducto)
	assign(&l.CantidadEstimada, FieldCantidad)
	assign(&l.FechaEntrega, FieldFechaEntrega)
	assign(&l.Presupuesto, FieldPresupuesto)
	assign(&l.Personalizacion, FieldPersonalizacion)
}

// LeadFilter narrows lead listings. Zero values match everything.
type LeadFilter struct {
	Stage          FunnelStage
	Classification Classification
}

// Matches reports whether l passes the filter.
func (f LeadFilter) Matches(l Lead) bool {
	if f.Stage != "" && l.FunnelStage != f.Stage {
		return false
	}
	if f.Classification != "" && l.Classification != f.Classification {
		return false
	}
	return true
}

// QuoteStatusPending is the status of a quote awaiting business review.
const QuoteStatusPending = "pending"

// QuoteItem is one priced line of a quote.
type QuoteItem struct {
	ProductID       string `json:"product_id"`
	Code            string `json:"code"`
	ProductName     string `json:"product_name"`
	Description     string `json:"description,omitempty"`
	Quantity        int    `json:"quantity"`
	BasePriceCents  int64  `json:"base_price_cents"`
	DiscountPercent int    `json:"discount_percent"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	SubtotalCents   int64  `json:"subtotal_cents"`
}

// Quote is created once by the quote generator and never mutated by the dialogue.
type Quote struct {
	ID               string      `json:"id"`
	ConversationID   string      `json:"conversation_id"`
	PhoneNumber      string      `json:"phone_number"`
	Status           string      `json:"status"`
	ClientName       string      `json:"client_name,omitempty"`
	ClientEmpresa    string      `json:"client_empresa,omitempty"`
	ClientCorreo     string      `json:"client_correo,omitempty"`
	ClientCiudad     string      `json:"client_ciudad,omitempty"`
	Items            []QuoteItem `json:"items"`
	Cantidad         string      `json:"cantidad,omitempty"`
	FechaEntrega     string      `json:"fecha_entrega,omitempty"`
	Personalizacion  string      `json:"personalizacion,omitempty"`
	NecesitaDiseno   string      `json:"necesita_diseno,omitempty"`
	TotalCents       int64       `json:"total_cents"`
	DeliveryEstimate string      `json:"delivery_estimate"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Product is a catalog entry. The engine only reads products.
type Product struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product validation errors.
var (
	ErrEmptyProductCode = errors.New("product code is required")
	ErrEmptyProductName = errors.New("product name is required")
	ErrNegativePrice    = errors.New("product price cannot be negative")
)

// Validate checks the minimal catalog invariants.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return ErrEmptyProductCode
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyProductName
	}
	if p.PriceCents < 0 {
		return ErrNegativePrice
	}
	return nil
}
