// Package units converts heterogeneous data-entry units into one canonical
// unit per ingredient family (mass in grams, volume in milliliters), so
// quantities from different receiving events are comparable and
// subtractable. Applied at ingredient registration and at stock receiving;
// on-hand quantities are always stored canonical.
package units

import (
	"github.com/shopspring/decimal"

	"pos-service/internal/apperr"
)

// Supported input units
const (
	Grams       = "grams"
	Kilograms   = "kilograms"
	Liters      = "liters"
	Milliliters = "milliliters"
	Pieces      = "pieces"
	Boxes       = "boxes"
)

var thousand = decimal.NewFromInt(1000)

// Normalize converts quantity from the given input unit into its canonical
// unit. Boxes stay distinct from pieces: no cross-conversion is defined
// between count-based units.
func Normalize(quantity decimal.Decimal, unit string) (decimal.Decimal, string, error) {
	switch unit {
	case Grams:
		return quantity, Grams, nil
	case Kilograms:
		return quantity.Mul(thousand), Grams, nil
	case Milliliters:
		return quantity, Milliliters, nil
	case Liters:
		return quantity.Mul(thousand), Milliliters, nil
	case Pieces:
		return quantity, Pieces, nil
	case Boxes:
		return quantity, Boxes, nil
	default:
		return decimal.Zero, "", &apperr.UnsupportedUnitError{Unit: unit}
	}
}

// Canonical reports whether unit is already a canonical at-rest unit.
func Canonical(unit string) bool {
	switch unit {
	case Grams, Milliliters, Pieces, Boxes:
		return true
	}
	return false
}
