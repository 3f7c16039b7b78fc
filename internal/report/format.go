package report

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/brentwatch/internal/models"
)

// InsufficientData is shown wherever a figure cannot be computed.
const InsufficientData = "insufficient data"

// FormatPrice renders a USD price with thousands separators and two decimals.
func FormatPrice(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return InsufficientData
	}
	return "US$ " + humanize.FormatFloat("#,###.##", v)
}

// FormatNumber renders v with two decimals.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return InsufficientData
	}
	return humanize.FormatFloat("#,###.##", v)
}

func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return InsufficientData
	}
	return t.Format(models.DateLayout)
}
