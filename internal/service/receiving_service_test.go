package service

import (
	"context"
	"testing"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/units"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveStockNormalizesBeforeApplying(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "patty", qty("400"))
	pub := &fakePublisher{}
	svc := NewReceivingService(stock, nil, pub, 3, time.Millisecond)

	movement, err := svc.ReceiveStock(context.Background(), &ReceiveStockRequest{
		BranchCode:     "BR01",
		IngredientName: "patty",
		Quantity:       qty("2.5"),
		Unit:           units.Kilograms,
		UnitPrice:      qty("320"),
		InvoiceDate:    "2026-08-30",
		VendorID:       7,
	})
	require.NoError(t, err)

	// 2.5 kg arrives as 2500 g
	assert.True(t, movement.Delta.Equal(qty("2500")))
	assert.True(t, movement.UpdatedQuantity.Equal(qty("2900")))
	assert.Equal(t, models.MovementKindReceipt, movement.Kind)
	assert.Equal(t, int64(7), movement.VendorID)
	assert.Equal(t, "2026-08-30", movement.InvoiceDate)
	assert.True(t, stock.quantity("BR01", "patty").Equal(qty("2900")))

	require.Len(t, pub.received, 1)
	assert.True(t, pub.received[0].QuantityAdded.Equal(qty("2500")))
}

func TestReceiveStockRejectsNonPositiveQuantity(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "patty", qty("400"))
	svc := NewReceivingService(stock, nil, nil, 3, time.Millisecond)

	for _, quantity := range []string{"0", "-1"} {
		_, err := svc.ReceiveStock(context.Background(), &ReceiveStockRequest{
			BranchCode:     "BR01",
			IngredientName: "patty",
			Quantity:       qty(quantity),
			Unit:           units.Grams,
		})
		var verr *apperr.ValidationError
		require.ErrorAs(t, err, &verr, "quantity %s", quantity)
	}
	assert.True(t, stock.quantity("BR01", "patty").Equal(qty("400")))
}

func TestReceiveStockUnsupportedUnit(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "patty", qty("400"))
	svc := NewReceivingService(stock, nil, nil, 3, time.Millisecond)

	_, err := svc.ReceiveStock(context.Background(), &ReceiveStockRequest{
		BranchCode:     "BR01",
		IngredientName: "patty",
		Quantity:       qty("1"),
		Unit:           "pounds",
	})
	var uerr *apperr.UnsupportedUnitError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "pounds", uerr.Unit)
}

func TestReceiveStockUnknownIngredient(t *testing.T) {
	svc := NewReceivingService(newFakeStockStore(), nil, nil, 3, time.Millisecond)

	_, err := svc.ReceiveStock(context.Background(), &ReceiveStockRequest{
		BranchCode:     "BR01",
		IngredientName: "saffron",
		Quantity:       qty("10"),
		Unit:           units.Grams,
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestReceiveStockRetriesOnContention(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "patty", qty("100"))
	stock.conflicts = 2
	svc := NewReceivingService(stock, nil, nil, 3, time.Millisecond)

	movement, err := svc.ReceiveStock(context.Background(), &ReceiveStockRequest{
		BranchCode:     "BR01",
		IngredientName: "patty",
		Quantity:       qty("50"),
		Unit:           units.Grams,
	})
	require.NoError(t, err)
	assert.True(t, movement.UpdatedQuantity.Equal(qty("150")))
}
