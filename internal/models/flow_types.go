// Package models defines dialogue step and vocabulary types to avoid circular imports.
package models

import "strings"

// Step represents a state of the lead-qualification dialogue.
type Step string

// RequestType represents what the customer asked for when the conversation started.
type RequestType string

// Field is a key of the collected business data vocabulary.
type Field string

// Dialogue steps. The happy path is linear from greeting to confirm_data.
const (
	StepGreeting               Step = "greeting"
	StepIdentifyNeed           Step = "identify_need"
	StepCollectName            Step = "collect_name"
	StepCollectEmpresa         Step = "collect_empresa"
	StepCollectCiudad          Step = "collect_ciudad"
	StepCollectCorreo          Step = "collect_correo"
	StepCollectProducto        Step = "collect_producto"
	StepCollectCantidad        Step = "collect_cantidad"
	StepCollectFecha           Step = "collect_fecha"
	StepCollectPresupuesto     Step = "collect_presupuesto"
	StepCollectPersonalizacion Step = "collect_personalizacion"
	StepConfirmData            Step = "confirm_data"
	StepCorrectData            Step = "correct_data"
	StepTransferHuman          Step = "transfer_human"
)

// AllSteps lists every step in dialogue order.
var AllSteps = []Step{
	StepGreeting,
	StepIdentifyNeed,
	StepCollectName,
	StepCollectEmpresa,
	StepCollectCiudad,
	StepCollectCorreo,
	StepCollectProducto,
	StepCollectCantidad,
	StepCollectFecha,
	StepCollectPresupuesto,
	StepCollectPersonalizacion,
	StepConfirmData,
	StepCorrectData,
	StepTransferHuman,
}

// IsValidStep reports whether s is one of the enumerated steps.
func IsValidStep(s Step) bool {
	for _, step := range AllSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Request types, in the order the intent keyword table is evaluated.
const (
	RequestQuote     RequestType = "cotizacion_directa"
	RequestCatalog   RequestType = "solicitud_catalogo"
	RequestIdeas     RequestType = "consulta_ideas"
	RequestSeasonal  RequestType = "pedido_estacional"
	RequestCorporate RequestType = "corporativo"
	RequestUrgent    RequestType = "urgente"
	RequestGeneral   RequestType = "pregunta_general"
)

// IsValidRequestType reports whether rt is a known request type.
func IsValidRequestType(rt RequestType) bool {
	switch rt {
	case RequestQuote, RequestCatalog, RequestIdeas, RequestSeasonal, RequestCorporate, RequestUrgent, RequestGeneral:
		return true
	default:
		return false
	}
}

// Collected data vocabulary.
const (
	FieldNombre          Field = "nombre"
	FieldEmpresa         Field = "empresa"
	FieldCiudad          Field = "ciudad"
	FieldCorreo          Field = "correo"
	FieldProducto        Field = "producto"
	FieldCodigosProducto Field = "codigos_producto"
	FieldCantidad        Field = "cantidad"
	FieldFechaEntrega    Field = "fecha_entrega"
	FieldPresupuesto     Field = "presupuesto"
	FieldPersonalizacion Field = "personalizacion"
	FieldNecesitaDiseno  Field = "necesita_diseno"
)

// AllFields lists the fixed vocabulary of collected data keys.
var AllFields = []Field{
	FieldNombre,
	FieldEmpresa,
	FieldCiudad,
	FieldCorreo,
	FieldProducto,
	FieldCodigosProducto,
	FieldCantidad,
	FieldFechaEntrega,
	FieldPresupuesto,
	FieldPersonalizacion,
	FieldNecesitaDiseno,
}

// IsValidField reports whether f belongs to the collected data vocabulary.
func IsValidField(f Field) bool {
	for _, field := range AllFields {
		if f == field {
			return true
		}
	}
	return false
}

// CollectedData holds the business data extracted from a conversation.
// Values are only ever overwritten, never deleted.
type CollectedData map[Field]string

// Get returns the value stored for f, or "".
func (d CollectedData) Get(f Field) string {
	if d == nil {
		return ""
	}
	return d[f]
}

// Has reports whether f holds a non-empty value.
func (d CollectedData) Has(f Field) bool {
	return strings.TrimSpace(d.Get(f)) != ""
}

// Set stores value under f. Empty and placeholder values are ignored so a
// sloppy extraction can never erase data already collected.
func (d CollectedData) Set(f Field, value string) bool {
	value = strings.TrimSpace(value)
	if d == nil || value == "" || !IsValidField(f) {
		return false
	}
	switch strings.ToLower(value) {
	case "null", "none", "n/a":
		return false
	}
	d[f] = value
	return true
}

// Clone returns an independent copy of the data.
func (d CollectedData) Clone() CollectedData {
	out := make(CollectedData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
