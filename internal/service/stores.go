package service

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
)

// TableStore is the per-table document contract. UpdateTableOrders and
// CommitSettlement are compare-and-swap operations keyed by the table's
// version; callers retry on apperr.ErrConcurrencyConflict.
type TableStore interface {
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	UpdateTableOrders(ctx context.Context, tableID, version int64, orders models.OrderLines, orderStatus string) error
	CommitSettlement(ctx context.Context, entry *models.HistoryEntry, tableVersion int64, orderStatus string) error
	GetSettlementByIdempotencyKey(ctx context.Context, key string) (*models.HistoryEntry, error)
}

// ProductStore provides branch-scoped catalog reads for the order ledger.
type ProductStore interface {
	GetProduct(ctx context.Context, branchCode string, id int64) (*models.Product, error)
}

// StockStore applies independently-atomic read-modify-writes to single
// inventory rows. Shared by the consumption and receiving paths so both use
// the same transactional primitive.
type StockStore interface {
	AdjustStockTx(ctx context.Context, adj store.StockAdjustment) (*models.StockMovement, error)
}

// BacklogStore records consumption failures for out-of-band reconciliation.
type BacklogStore interface {
	AddBacklogEntry(ctx context.Context, entry *models.BacklogEntry) error
}

// HistoryStore provides the read path for reporting collaborators.
type HistoryStore interface {
	ListHistory(ctx context.Context, branchCode string, from, to *time.Time) ([]models.HistoryEntry, error)
	ListHistoryByTable(ctx context.Context, tableID int64) ([]models.HistoryEntry, error)
}

// StockCache keeps a best-effort snapshot of on-hand quantities for
// dashboard reads. Cache failures never affect the database outcome.
type StockCache interface {
	AdjustStock(ctx context.Context, branchCode, ingredientName, delta string) (bool, error)
	InitStock(ctx context.Context, branchCode, ingredientName, quantity string) error
	GetStock(ctx context.Context, branchCode, ingredientName string) (string, error)
	InvalidateStock(ctx context.Context, branchCode, ingredientName string) error
}

// SettlementPublisher emits the settled line snapshot downstream.
type SettlementPublisher interface {
	PublishSettlementCommitted(ctx context.Context, event *models.SettlementCommittedEvent) error
}

// ConsumptionPublisher reports consumption outcomes.
type ConsumptionPublisher interface {
	PublishStockConsumed(ctx context.Context, event *models.StockConsumedEvent) error
	PublishConsumptionFailed(ctx context.Context, event *models.ConsumptionFailedEvent) error
}

// ReceiptPublisher reports received stock.
type ReceiptPublisher interface {
	PublishStockReceived(ctx context.Context, event *models.StockReceivedEvent) error
}

func isConflict(err error) bool {
	return errors.Is(err, apperr.ErrConcurrencyConflict)
}
