package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/apperr"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		quantity string
		unit     string
		want     string
		wantUnit string
	}{
		{"grams pass through", "250", Grams, "250", Grams},
		{"kilograms to grams", "1", Kilograms, "1000", Grams},
		{"fractional kilograms", "0.5", Kilograms, "500", Grams},
		{"liters to milliliters", "1", Liters, "1000", Milliliters},
		{"milliliters pass through", "330", Milliliters, "330", Milliliters},
		{"pieces pass through", "5", Pieces, "5", Pieces},
		{"boxes stay boxes", "2", Boxes, "2", Boxes},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty := decimal.RequireFromString(tc.quantity)
			got, gotUnit, err := Normalize(qty, tc.unit)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s, want %s", got, tc.want)
			assert.Equal(t, tc.wantUnit, gotUnit)
		})
	}
}

func TestNormalizeUnsupportedUnit(t *testing.T) {
	_, _, err := Normalize(decimal.NewFromInt(1), "gallons")
	require.Error(t, err)

	var ue *apperr.UnsupportedUnitError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "gallons", ue.Unit)
}

func TestCanonical(t *testing.T) {
	assert.True(t, Canonical(Grams))
	assert.True(t, Canonical(Milliliters))
	assert.True(t, Canonical(Pieces))
	assert.True(t, Canonical(Boxes))
	assert.False(t, Canonical(Kilograms))
	assert.False(t, Canonical(Liters))
	assert.False(t, Canonical(""))
}
