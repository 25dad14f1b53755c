package service

import (
	"testing"
	"time"

	"pos-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dueEntry(responsible, total string, settledAt time.Time, orders models.OrderLines) models.HistoryEntry {
	return models.HistoryEntry{
		Status:          models.PaymentStatusDue,
		Method:          models.PaymentMethodCash,
		Responsible:     responsible,
		Total:           money(total),
		DiscountedTotal: money(total),
		Orders:          orders,
		SettledAt:       settledAt,
	}
}

func TestGroupDuesSumsPerResponsible(t *testing.T) {
	day1 := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)

	entries := []models.HistoryEntry{
		dueEntry("Raj", "50", day1, models.OrderLines{{ProductName: "Tea", Quantity: 2}}),
		dueEntry("Raj", "70", day2, models.OrderLines{{ProductName: "Thali", Quantity: 1}}),
		dueEntry("Asha", "30", day1, nil),
		{Status: models.PaymentStatusSettled, Method: models.PaymentMethodCash, Total: money("500")},
	}

	groups := GroupDues(entries)
	require.Len(t, groups, 2, "settled entries are excluded")

	// sorted by responsible
	assert.Equal(t, "Asha", groups[0].Responsible)
	assert.True(t, groups[0].Total.Equal(money("30")))
	assert.Equal(t, 1, groups[0].Entries)

	raj := groups[1]
	assert.Equal(t, "Raj", raj.Responsible)
	assert.True(t, raj.Total.Equal(money("120")), "two dues sum: %s", raj.Total)
	assert.Equal(t, 2, raj.Entries)
	assert.Equal(t, day2, raj.LastTimestamp, "latest timestamp wins")
	require.Len(t, raj.Orders, 2, "constituent lines are unioned")
	assert.Equal(t, "Tea", raj.Orders[0].ProductName)
	assert.Equal(t, "Thali", raj.Orders[1].ProductName)
}

func TestGroupDuesDefaultsUnknownResponsible(t *testing.T) {
	entries := []models.HistoryEntry{
		dueEntry("", "40", time.Now(), nil),
		dueEntry("", "10", time.Now(), nil),
	}

	groups := GroupDues(entries)
	require.Len(t, groups, 1)
	assert.Equal(t, "Unknown", groups[0].Responsible)
	assert.True(t, groups[0].Total.Equal(money("50")))
}

func TestGroupDuesEmpty(t *testing.T) {
	assert.Empty(t, GroupDues(nil))
	assert.Empty(t, GroupDues([]models.HistoryEntry{
		{Status: models.PaymentStatusSettled, Total: money("10")},
	}))
}

func TestGroupByMethodSumsSettledOnly(t *testing.T) {
	entries := []models.HistoryEntry{
		{Status: models.PaymentStatusSettled, Method: models.PaymentMethodCash, Total: money("100"), DiscountedTotal: money("90")},
		{Status: models.PaymentStatusSettled, Method: models.PaymentMethodCash, Total: money("50"), DiscountedTotal: money("50")},
		{Status: models.PaymentStatusSettled, Method: models.PaymentMethodUPI, Total: money("200"), DiscountedTotal: money("200")},
		dueEntry("Raj", "999", time.Now(), nil),
	}

	totals := GroupByMethod(entries)
	require.Len(t, totals, 2)

	// sorted by method
	assert.Equal(t, models.PaymentMethodCash, totals[0].Method)
	assert.True(t, totals[0].Total.Equal(money("150")))
	assert.True(t, totals[0].DiscountedTotal.Equal(money("140")))
	assert.Equal(t, 2, totals[0].Entries)

	assert.Equal(t, models.PaymentMethodUPI, totals[1].Method)
	assert.True(t, totals[1].Total.Equal(money("200")))
	assert.Equal(t, 1, totals[1].Entries)
}
