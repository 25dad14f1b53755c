package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeTableStore is an in-memory TableStore with real compare-and-swap
// semantics, so concurrency paths can be exercised without Postgres.
type fakeTableStore struct {
	mu          sync.Mutex
	tables      map[int64]*models.Table
	settlements []*models.HistoryEntry
	conflicts   int
}

func newFakeTableStore(tables ...*models.Table) *fakeTableStore {
	f := &fakeTableStore{tables: make(map[int64]*models.Table)}
	for _, t := range tables {
		f.tables[t.ID] = t
	}
	return f
}

func (f *fakeTableStore) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[id]
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "table", Key: fmt.Sprintf("%d", id)}
	}
	cp := *t
	cp.Orders = append(models.OrderLines{}, t.Orders...)
	return &cp, nil
}

func (f *fakeTableStore) UpdateTableOrders(ctx context.Context, tableID, version int64, orders models.OrderLines, orderStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return apperr.ErrConcurrencyConflict
	}
	t, ok := f.tables[tableID]
	if !ok {
		return &apperr.NotFoundError{Kind: "table", Key: fmt.Sprintf("%d", tableID)}
	}
	if t.Version != version {
		return apperr.ErrConcurrencyConflict
	}
	t.Orders = orders
	t.OrderStatus = orderStatus
	t.Version++
	return nil
}

func (f *fakeTableStore) CommitSettlement(ctx context.Context, entry *models.HistoryEntry, tableVersion int64, orderStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return apperr.ErrConcurrencyConflict
	}
	t, ok := f.tables[entry.TableID]
	if !ok {
		return &apperr.NotFoundError{Kind: "table", Key: fmt.Sprintf("%d", entry.TableID)}
	}
	if t.Version != tableVersion {
		return apperr.ErrConcurrencyConflict
	}
	t.Orders = models.OrderLines{}
	t.OrderStatus = orderStatus
	t.Version++
	f.settlements = append(f.settlements, entry)
	return nil
}

func (f *fakeTableStore) GetSettlementByIdempotencyKey(ctx context.Context, key string) (*models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.settlements {
		if e.IdempotencyKey == key {
			return e, nil
		}
	}
	return nil, nil
}

type fakeProductStore struct {
	products map[int64]*models.Product
}

func (f *fakeProductStore) GetProduct(ctx context.Context, branchCode string, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok || p.BranchCode != branchCode {
		return nil, &apperr.NotFoundError{Kind: "product", Key: fmt.Sprintf("%d", id)}
	}
	return p, nil
}

// fakeStockStore applies adjustments to an in-memory quantity map. Unknown
// ingredients and duplicate rows reproduce the store's error taxonomy.
type fakeStockStore struct {
	mu        sync.Mutex
	stock     map[string]decimal.Decimal
	ambiguous map[string]bool
	conflicts int
	movements []*models.StockMovement
}

func newFakeStockStore() *fakeStockStore {
	return &fakeStockStore{
		stock:     make(map[string]decimal.Decimal),
		ambiguous: make(map[string]bool),
	}
}

func stockID(branchCode, ingredientName string) string {
	return branchCode + "/" + ingredientName
}

func (f *fakeStockStore) set(branchCode, ingredientName string, qty decimal.Decimal) {
	f.stock[stockID(branchCode, ingredientName)] = qty
}

func (f *fakeStockStore) quantity(branchCode, ingredientName string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[stockID(branchCode, ingredientName)]
}

func (f *fakeStockStore) AdjustStockTx(ctx context.Context, adj store.StockAdjustment) (*models.StockMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return nil, apperr.ErrConcurrencyConflict
	}
	key := stockID(adj.BranchCode, adj.IngredientName)
	if f.ambiguous[key] {
		return nil, &apperr.AmbiguousIngredientError{
			BranchCode:     adj.BranchCode,
			IngredientName: adj.IngredientName,
			Matches:        2,
		}
	}
	current, ok := f.stock[key]
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "ingredient", Key: adj.IngredientName}
	}
	updated := current.Add(adj.Delta)
	f.stock[key] = updated
	movement := &models.StockMovement{
		BranchCode:      adj.BranchCode,
		IngredientName:  adj.IngredientName,
		Delta:           adj.Delta,
		UpdatedQuantity: updated,
		Kind:            adj.Kind,
		SettlementID:    adj.SettlementID,
		VendorID:        adj.VendorID,
		UnitPrice:       adj.UnitPrice,
		InvoiceDate:     adj.InvoiceDate,
		CreatedAt:       time.Now(),
	}
	f.movements = append(f.movements, movement)
	return movement, nil
}

type fakeBacklog struct {
	mu      sync.Mutex
	entries []*models.BacklogEntry
}

func (f *fakeBacklog) AddBacklogEntry(ctx context.Context, entry *models.BacklogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	mu         sync.Mutex
	committed  []*models.SettlementCommittedEvent
	consumed   []*models.StockConsumedEvent
	failed     []*models.ConsumptionFailedEvent
	received   []*models.StockReceivedEvent
	publishErr error
}

func (f *fakePublisher) PublishSettlementCommitted(ctx context.Context, event *models.SettlementCommittedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.committed = append(f.committed, event)
	return nil
}

func (f *fakePublisher) PublishStockConsumed(ctx context.Context, event *models.StockConsumedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, event)
	return nil
}

func (f *fakePublisher) PublishConsumptionFailed(ctx context.Context, event *models.ConsumptionFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, event)
	return nil
}

func (f *fakePublisher) PublishStockReceived(ctx context.Context, event *models.StockReceivedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, event)
	return nil
}
