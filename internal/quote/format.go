package quote

import (
	"strconv"
	"strings"
)

// PriceUnavailable is shown instead of a non-positive price.
const PriceUnavailable = "Precio por confirmar"

// FormatPrice renders cents in Ecuadorian notation, e.g. $1.234,56.
func FormatPrice(cents int64) string {
	if cents <= 0 {
		return PriceUnavailable
	}
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	frac := cents % 100
	b.WriteByte(',')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}
