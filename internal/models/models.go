package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecipeItem is one ingredient-and-quantity pair consumed per unit sold.
type RecipeItem struct {
	IngredientName string          `json:"ingredient_name"`
	Category       string          `json:"category"`
	QuantityUsed   decimal.Decimal `json:"quantity_used"`
	Unit           string          `json:"unit"`
}

// Recipe is stored as a JSONB column and snapshotted into order lines.
type Recipe []RecipeItem

func (r Recipe) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Recipe) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// Product represents a sellable item in the branch catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	BranchCode  string          `db:"branch_code" json:"branch_code"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Subcategory string          `db:"subcategory" json:"subcategory"`
	Recipe      Recipe          `db:"recipe" json:"recipe"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// InventoryItem represents on-hand stock for one ingredient, denominated in
// its canonical unit. Unique per (branch_code, ingredient_name).
type InventoryItem struct {
	ID             int64           `db:"id" json:"id"`
	BranchCode     string          `db:"branch_code" json:"branch_code"`
	IngredientName string          `db:"ingredient_name" json:"ingredient_name"`
	Category       string          `db:"category" json:"category"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	LastUpdated    time.Time       `db:"last_updated" json:"last_updated"`
}

// OrderLine is one product-and-quantity entry in a table's live order.
// Price and recipe are snapshots taken when the line is added, so later
// catalog edits never change historical consumption.
type OrderLine struct {
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Recipe      Recipe          `json:"recipe"`
}

// OrderLines is the live order of a table, stored as a JSONB column.
type OrderLines []OrderLine

func (o OrderLines) Value() (driver.Value, error) {
	if o == nil {
		o = OrderLines{}
	}
	return json.Marshal(o)
}

func (o *OrderLines) Scan(src interface{}) error {
	return scanJSON(src, o)
}

// Table represents a restaurant table with its live order
type Table struct {
	ID          int64      `db:"id" json:"id"`
	BranchCode  string     `db:"branch_code" json:"branch_code"`
	TableNumber string     `db:"table_number" json:"table_number"`
	Orders      OrderLines `db:"orders" json:"orders"`
	OrderStatus string     `db:"order_status" json:"order_status"`
	Version     int64      `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// HistoryEntry is a frozen settlement record. Immutable once written.
type HistoryEntry struct {
	ID                 string          `db:"id" json:"id"`
	TableID            int64           `db:"table_id" json:"table_id"`
	BranchCode         string          `db:"branch_code" json:"branch_code"`
	Orders             OrderLines      `db:"orders" json:"orders"`
	Total              decimal.Decimal `db:"total" json:"total"`
	DiscountedTotal    decimal.Decimal `db:"discounted_total" json:"discounted_total"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	Status             string          `db:"status" json:"status"`
	Method             string          `db:"method" json:"method"`
	Responsible        string          `db:"responsible" json:"responsible,omitempty"`
	IdempotencyKey     string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	SettledAt          time.Time       `db:"settled_at" json:"settled_at"`
}

// StockMovement is one append-only entry in the inventory audit trail.
// Delta is negative for consumption and positive for receipts.
type StockMovement struct {
	ID              int64           `db:"id" json:"id"`
	BranchCode      string          `db:"branch_code" json:"branch_code"`
	IngredientName  string          `db:"ingredient_name" json:"ingredient_name"`
	Delta           decimal.Decimal `db:"delta" json:"delta"`
	UpdatedQuantity decimal.Decimal `db:"updated_quantity" json:"updated_quantity"`
	Kind            string          `db:"kind" json:"kind"`
	SettlementID    string          `db:"settlement_id" json:"settlement_id,omitempty"`
	VendorID        int64           `db:"vendor_id" json:"vendor_id,omitempty"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price,omitempty"`
	InvoiceDate     string          `db:"invoice_date" json:"invoice_date,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Vendor supplies raw ingredients to a branch
type Vendor struct {
	ID         int64     `db:"id" json:"id"`
	BranchCode string    `db:"branch_code" json:"branch_code"`
	Name       string    `db:"name" json:"name"`
	Phone      string    `db:"phone" json:"phone,omitempty"`
	Categories Strings   `db:"categories" json:"categories"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Strings is a JSONB string array column.
type Strings []string

func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		s = Strings{}
	}
	return json.Marshal(s)
}

func (s *Strings) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// BacklogEntry records a consumption failure awaiting out-of-band
// reconciliation. The settlement it belongs to is already committed.
type BacklogEntry struct {
	ID             int64           `db:"id" json:"id"`
	BranchCode     string          `db:"branch_code" json:"branch_code"`
	SettlementID   string          `db:"settlement_id" json:"settlement_id"`
	IngredientName string          `db:"ingredient_name" json:"ingredient_name"`
	QuantityUsed   decimal.Decimal `db:"quantity_used" json:"quantity_used"`
	Reason         string          `db:"reason" json:"reason"`
	Resolved       bool            `db:"resolved" json:"resolved"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Payment dispositions
const (
	PaymentStatusSettled = "Settled"
	PaymentStatusDue     = "Due"
)

// Payment methods
const (
	PaymentMethodCash = "Cash"
	PaymentMethodCard = "Card"
	PaymentMethodUPI  = "UPI"
)

// Table order statuses (human-readable labels derived from disposition)
const (
	OrderStatusNewOrder     = "New Order"
	OrderStatusRunningOrder = "Running Order"
)

// Stock movement kinds
const (
	MovementKindConsumption = "consumption"
	MovementKindReceipt     = "receipt"
)

// ValidPaymentMethod reports whether m is an accepted settlement method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
