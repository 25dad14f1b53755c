package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSettlementCommitted = "SETTLEMENT_COMMITTED"
	EventTypeStockConsumed       = "STOCK_CONSUMED"
	EventTypeConsumptionFailed   = "CONSUMPTION_FAILED"
	EventTypeStockReceived       = "STOCK_RECEIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SettlementCommittedEvent published when a table's live order is frozen
// into history. Carries the settled line snapshot so the consumption engine
// never has to read the (already cleared) live order back.
type SettlementCommittedEvent struct {
	BaseEvent
	SettlementID    string          `json:"settlement_id"`
	TableID         int64           `json:"table_id"`
	BranchCode      string          `json:"branch_code"`
	Lines           OrderLines      `json:"lines"`
	Total           decimal.Decimal `json:"total"`
	DiscountedTotal decimal.Decimal `json:"discounted_total"`
	Status          string          `json:"status"`
	Method          string          `json:"method"`
}

// StockConsumedEvent published after the consumption engine applied all
// deductions for a settlement (some may still have failed individually).
type StockConsumedEvent struct {
	BaseEvent
	SettlementID string `json:"settlement_id"`
	BranchCode   string `json:"branch_code"`
	Applied      int    `json:"applied"`
	Failed       int    `json:"failed"`
}

// ConsumptionFailedEvent published per ingredient whose deduction could not
// be applied. The settlement stays committed; the failure goes to the
// reconciliation backlog.
type ConsumptionFailedEvent struct {
	BaseEvent
	SettlementID   string          `json:"settlement_id"`
	BranchCode     string          `json:"branch_code"`
	IngredientName string          `json:"ingredient_name"`
	QuantityUsed   decimal.Decimal `json:"quantity_used"`
	Reason         string          `json:"reason"`
}

// StockReceivedEvent published when raw stock is received from a vendor.
type StockReceivedEvent struct {
	BaseEvent
	BranchCode      string          `json:"branch_code"`
	IngredientName  string          `json:"ingredient_name"`
	QuantityAdded   decimal.Decimal `json:"quantity_added"`
	UpdatedQuantity decimal.Decimal `json:"updated_quantity"`
	VendorID        int64           `json:"vendor_id,omitempty"`
}
