package ingest

import (
	"math"
	"time"

	"github.com/lox/brentwatch/internal/models"
)

const (
	FlagPriceNonPositive = "price_non_positive"
	FlagPriceImplausible = "price_implausible"
	FlagPriceNotFinite   = "price_not_finite"
	FlagDateInFuture     = "date_in_future"
	FlagDateTooOld       = "date_too_old"
	FlagDuplicateDate    = "duplicate_date"
)

// maxPlausiblePrice is well above the 2008 peak of roughly 144 USD.
const maxPlausiblePrice = 1000

var earliestDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidateObservation returns quality flags for a parsed row. Any flag
// rejects the row.
func ValidateObservation(obs models.PriceObservation, now time.Time) []string {
	var flags []string

	switch {
	case math.IsNaN(obs.Price) || math.IsInf(obs.Price, 0):
		flags = append(flags, FlagPriceNotFinite)
	case obs.Price <= 0:
		flags = append(flags, FlagPriceNonPositive)
	case obs.Price > maxPlausiblePrice:
		flags = append(flags, FlagPriceImplausible)
	}

	if obs.Date.After(now) {
		flags = append(flags, FlagDateInFuture)
	}
	if obs.Date.Before(earliestDate) {
		flags = append(flags, FlagDateTooOld)
	}

	return flags
}
