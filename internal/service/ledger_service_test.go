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

func catalogWithBurger() *fakeProductStore {
	return &fakeProductStore{products: map[int64]*models.Product{
		1: {
			ID:         1,
			BranchCode: "BR01",
			Name:       "Burger",
			Price:      money("50"),
			Recipe: models.Recipe{
				{IngredientName: "bun", QuantityUsed: money("1"), Unit: units.Pieces},
			},
		},
		2: {ID: 2, BranchCode: "BR01", Name: "Pizza", Price: money("100")},
	}}
}

func emptyTable(id int64) *models.Table {
	return &models.Table{
		ID:          id,
		BranchCode:  "BR01",
		TableNumber: "T1",
		Orders:      models.OrderLines{},
		OrderStatus: models.OrderStatusNewOrder,
	}
}

func TestAddLineSnapshotsProduct(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	table, err := svc.AddLine(context.Background(), 1, 1)
	require.NoError(t, err)

	require.Len(t, table.Orders, 1)
	line := table.Orders[0]
	assert.Equal(t, "Burger", line.ProductName)
	assert.True(t, line.UnitPrice.Equal(money("50")))
	assert.Equal(t, 1, line.Quantity)
	require.Len(t, line.Recipe, 1)
	assert.Equal(t, "bun", line.Recipe[0].IngredientName)
	assert.Equal(t, models.OrderStatusRunningOrder, table.OrderStatus)
}

func TestAddLineAccumulatesSameProduct(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	ctx := context.Background()
	_, err := svc.AddLine(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, 1, 2)
	require.NoError(t, err)
	table, err := svc.AddLine(ctx, 1, 1)
	require.NoError(t, err)

	// same product accumulates, it never duplicates the row
	require.Len(t, table.Orders, 2)
	assert.Equal(t, "Burger", table.Orders[0].ProductName)
	assert.Equal(t, 2, table.Orders[0].Quantity)
	assert.Equal(t, "Pizza", table.Orders[1].ProductName)
	assert.Equal(t, 1, table.Orders[1].Quantity)
}

func TestAddLineUnknownProduct(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	_, err := svc.AddLine(context.Background(), 1, 99)
	assert.True(t, apperr.IsNotFound(err))
}

func TestAddLineRetriesOnConflict(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	tables.conflicts = 2
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	table, err := svc.AddLine(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Len(t, table.Orders, 1)
}

func TestAdjustQuantity(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	ctx := context.Background()
	_, err := svc.AddLine(ctx, 1, 1)
	require.NoError(t, err)

	table, err := svc.AdjustQuantity(ctx, 1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Orders[0].Quantity)

	table, err = svc.AdjustQuantity(ctx, 1, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Orders[0].Quantity)
}

func TestAdjustQuantityRemovesLineAtZero(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	ctx := context.Background()
	_, err := svc.AddLine(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, 1, 2)
	require.NoError(t, err)

	table, err := svc.AdjustQuantity(ctx, 1, 0, -1)
	require.NoError(t, err)
	require.Len(t, table.Orders, 1)
	assert.Equal(t, "Pizza", table.Orders[0].ProductName)
	assert.Equal(t, models.OrderStatusRunningOrder, table.OrderStatus)

	// removing the last line resets the table
	table, err = svc.AdjustQuantity(ctx, 1, 0, -5)
	require.NoError(t, err)
	assert.Empty(t, table.Orders)
	assert.Equal(t, models.OrderStatusNewOrder, table.OrderStatus)
}

func TestAdjustQuantityInvalidIndex(t *testing.T) {
	tables := newFakeTableStore(emptyTable(1))
	svc := NewLedgerService(tables, catalogWithBurger(), 3, time.Millisecond)

	ctx := context.Background()
	_, err := svc.AddLine(ctx, 1, 1)
	require.NoError(t, err)

	for _, index := range []int{-1, 1, 5} {
		_, err := svc.AdjustQuantity(ctx, 1, index, 1)
		var ierr *apperr.InvalidIndexError
		require.ErrorAs(t, err, &ierr, "index %d", index)
		assert.Equal(t, index, ierr.Index)
		assert.Equal(t, 1, ierr.Length)
	}

	// the rejected adjustments left the order untouched
	table, _ := tables.GetTable(ctx, 1)
	require.Len(t, table.Orders, 1)
	assert.Equal(t, 1, table.Orders[0].Quantity)
}
