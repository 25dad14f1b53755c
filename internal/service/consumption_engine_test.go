package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/units"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func burgerLine(quantity int) models.OrderLine {
	return models.OrderLine{
		ProductName: "Burger",
		UnitPrice:   qty("50"),
		Quantity:    quantity,
		Recipe: models.Recipe{
			{IngredientName: "bun", QuantityUsed: qty("1"), Unit: units.Pieces},
			{IngredientName: "patty", QuantityUsed: qty("50"), Unit: units.Grams},
		},
	}
}

func TestAggregateUsageFansInAcrossLines(t *testing.T) {
	lines := models.OrderLines{
		burgerLine(2),
		{
			ProductName: "Cheeseburger",
			UnitPrice:   qty("60"),
			Quantity:    1,
			Recipe: models.Recipe{
				{IngredientName: "bun", QuantityUsed: qty("1"), Unit: units.Pieces},
				{IngredientName: "patty", QuantityUsed: qty("0.05"), Unit: units.Kilograms},
				{IngredientName: "cheese", QuantityUsed: qty("20"), Unit: units.Grams},
			},
		},
	}

	usages := aggregateUsage(lines)
	require.Len(t, usages, 3)

	// order of first appearance
	assert.Equal(t, "bun", usages[0].name)
	assert.Equal(t, "patty", usages[1].name)
	assert.Equal(t, "cheese", usages[2].name)

	// 2 burgers + 1 cheeseburger
	assert.True(t, usages[0].total.Equal(qty("3")), "bun = %s", usages[0].total)
	assert.Equal(t, units.Pieces, usages[0].unit)

	// 50g x2 + 0.05kg normalized to 50g
	assert.True(t, usages[1].total.Equal(qty("150")), "patty = %s", usages[1].total)
	assert.Equal(t, units.Grams, usages[1].unit)

	assert.True(t, usages[2].total.Equal(qty("20")))
}

func TestAggregateUsageUnsupportedUnitPoisonsOneIngredient(t *testing.T) {
	lines := models.OrderLines{
		{
			ProductName: "Soup",
			Quantity:    1,
			Recipe: models.Recipe{
				{IngredientName: "broth", QuantityUsed: qty("1"), Unit: "gallons"},
				{IngredientName: "salt", QuantityUsed: qty("5"), Unit: units.Grams},
			},
		},
	}

	usages := aggregateUsage(lines)
	require.Len(t, usages, 2)
	assert.Error(t, usages[0].err)
	assert.NoError(t, usages[1].err)
	assert.True(t, usages[1].total.Equal(qty("5")))
}

func TestConsumeDeductsEachIngredientOnce(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("10"))
	stock.set("BR01", "patty", qty("500"))
	backlog := &fakeBacklog{}
	pub := &fakePublisher{}
	engine := NewConsumptionEngine(stock, backlog, nil, pub, 3, time.Millisecond)

	result := engine.Consume(context.Background(), "BR01", "set-1", models.OrderLines{burgerLine(2)})

	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, stock.quantity("BR01", "bun").Equal(qty("8")))
	assert.True(t, stock.quantity("BR01", "patty").Equal(qty("400")))
	assert.Empty(t, backlog.entries)

	// one audit movement per ingredient, tagged with the settlement
	require.Len(t, stock.movements, 2)
	for _, m := range stock.movements {
		assert.Equal(t, "set-1", m.SettlementID)
		assert.Equal(t, models.MovementKindConsumption, m.Kind)
		assert.True(t, m.Delta.IsNegative())
	}

	require.Len(t, pub.consumed, 1)
	assert.Equal(t, 2, pub.consumed[0].Applied)
}

func TestConsumeAllowsNegativeStock(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("1"))
	stock.set("BR01", "patty", qty("500"))
	engine := NewConsumptionEngine(stock, &fakeBacklog{}, nil, nil, 3, time.Millisecond)

	result := engine.Consume(context.Background(), "BR01", "set-2", models.OrderLines{burgerLine(3)})

	assert.Equal(t, 2, result.Applied)
	assert.True(t, stock.quantity("BR01", "bun").Equal(qty("-2")),
		"on-hand must go negative, not clamp: %s", stock.quantity("BR01", "bun"))
}

func TestConsumeUnknownIngredientGoesToBacklog(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("10"))
	// patty never registered
	backlog := &fakeBacklog{}
	pub := &fakePublisher{}
	engine := NewConsumptionEngine(stock, backlog, nil, pub, 3, time.Millisecond)

	result := engine.Consume(context.Background(), "BR01", "set-3", models.OrderLines{burgerLine(1)})

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Failed)

	// the known ingredient is still deducted
	assert.True(t, stock.quantity("BR01", "bun").Equal(qty("9")))

	require.Len(t, backlog.entries, 1)
	assert.Equal(t, "patty", backlog.entries[0].IngredientName)
	assert.Equal(t, "set-3", backlog.entries[0].SettlementID)
	assert.True(t, backlog.entries[0].QuantityUsed.Equal(qty("50")))

	require.Len(t, pub.failed, 1)
	assert.Equal(t, "unknown_ingredient", pub.failed[0].Reason)
}

func TestConsumeAmbiguousIngredientNeverAutoResolves(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("10"))
	stock.set("BR01", "patty", qty("500"))
	stock.ambiguous[stockID("BR01", "patty")] = true
	backlog := &fakeBacklog{}
	pub := &fakePublisher{}
	engine := NewConsumptionEngine(stock, backlog, nil, pub, 3, time.Millisecond)

	result := engine.Consume(context.Background(), "BR01", "set-4", models.OrderLines{burgerLine(1)})

	assert.Equal(t, 1, result.Failed)
	assert.True(t, stock.quantity("BR01", "patty").Equal(qty("500")), "ambiguous row untouched")
	require.Len(t, pub.failed, 1)
	assert.Equal(t, "ambiguous_ingredient", pub.failed[0].Reason)
	require.Len(t, backlog.entries, 1)
}

func TestConsumeRetriesOnRowContention(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("10"))
	stock.set("BR01", "patty", qty("500"))
	stock.conflicts = 2
	engine := NewConsumptionEngine(stock, &fakeBacklog{}, nil, nil, 3, time.Millisecond)

	result := engine.Consume(context.Background(), "BR01", "set-5", models.OrderLines{burgerLine(1)})

	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 0, result.Failed)
}

// Two settlements consuming the same ingredient concurrently: deductions
// are serialized per row, no update is lost.
func TestConcurrentConsumeNoLostUpdate(t *testing.T) {
	stock := newFakeStockStore()
	stock.set("BR01", "bun", qty("100"))
	stock.set("BR01", "patty", qty("1000"))
	engine := NewConsumptionEngine(stock, &fakeBacklog{}, nil, nil, 5, time.Millisecond)

	var wg sync.WaitGroup
	for _, id := range []string{"d1", "d2"} {
		wg.Add(1)
		go func(settlementID string) {
			defer wg.Done()
			engine.Consume(context.Background(), "BR01", settlementID, models.OrderLines{burgerLine(2)})
		}(id)
	}
	wg.Wait()

	assert.True(t, stock.quantity("BR01", "bun").Equal(qty("96")))
	assert.True(t, stock.quantity("BR01", "patty").Equal(qty("800")))
	assert.Len(t, stock.movements, 4)
}
