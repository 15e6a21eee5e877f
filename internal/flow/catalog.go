package flow

import (
	"fmt"
	"strings"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// CatalogLimit is the number of products listed in one catalog message.
const CatalogLimit = 8

const (
	catalogDescriptionLimit = 60
	catalogClosing          = "Revísalo y dime los códigos que te gusten para cotizarlos."
)

// CatalogUnavailableMessage replaces the catalog when no product matches.
const CatalogUnavailableMessage = "Nuestro catálogo está en actualización. Un asesor te compartirá las opciones disponibles. Mientras tanto, cuéntame qué producto buscas."

// FeaturedCatalogKey is the catalog_sent key of the featured selection.
const FeaturedCatalogKey = "destacados"

// CatalogKey normalizes keyword into the value recorded in catalog_sent.
func CatalogKey(keyword string) string {
	k := strings.ToLower(strings.TrimSpace(keyword))
	if k == "" {
		return FeaturedCatalogKey
	}
	return k
}

// FormatCatalogMessage renders products under a heading for keyword.
func FormatCatalogMessage(products []models.Product, keyword string) string {
	if len(products) == 0 {
		return CatalogUnavailableMessage
	}
	var b strings.Builder
	if k := strings.TrimSpace(keyword); k != "" {
		b.WriteString("CATÁLOGO " + strings.ToUpper(k) + "\n\n")
	} else {
		b.WriteString("PRODUCTOS DESTACADOS\n\n")
	}
	for i, p := range products {
		fmt.Fprintf(&b, "%d. Código: %s\n", i+1, p.Code)
		line := "   " + p.Name
		if desc := []rune(strings.TrimSpace(p.Description)); len(desc) > 0 {
			if len(desc) > catalogDescriptionLimit {
				desc = desc[:catalogDescriptionLimit]
			}
			line += " - " + string(desc)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + catalogClosing)
	return b.String()
}
