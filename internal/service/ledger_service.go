package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// LedgerService maintains each table's live order list. Every mutation
// persists the full updated sequence through a version compare-and-swap, so
// two waiters editing the same table never lose each other's lines.
type LedgerService struct {
	tables        TableStore
	products      ProductStore
	logger        *zap.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// NewLedgerService creates a new order ledger service
func NewLedgerService(tables TableStore, products ProductStore, retryAttempts int, retryBackoff time.Duration) *LedgerService {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &LedgerService{
		tables:        tables,
		products:      products,
		logger:        util.GetLogger(),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

// GetTable returns a table with its live order list
func (s *LedgerService) GetTable(ctx context.Context, tableID int64) (*models.Table, error) {
	return s.tables.GetTable(ctx, tableID)
}

// AddLine adds one unit of a product to the table's live order. A line with
// the same product name accumulates quantity instead of duplicating the row.
// The product's name, price and recipe are snapshotted at add-time.
func (s *LedgerService) AddLine(ctx context.Context, tableID, productID int64) (*models.Table, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.AddLine")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		table, err := s.tables.GetTable(ctx, tableID)
		if err != nil {
			return nil, err
		}

		product, err := s.products.GetProduct(ctx, table.BranchCode, productID)
		if err != nil {
			return nil, err
		}

		orders := cloneLines(table.Orders)
		found := false
		for i := range orders {
			if orders[i].ProductName == product.Name {
				orders[i].Quantity++
				found = true
				break
			}
		}
		if !found {
			orders = append(orders, models.OrderLine{
				ProductName: product.Name,
				UnitPrice:   product.Price,
				Quantity:    1,
				Recipe:      product.Recipe,
			})
		}

		err = s.tables.UpdateTableOrders(ctx, table.ID, table.Version, orders, models.OrderStatusRunningOrder)
		if err == nil {
			util.OrderLinesAddedTotal.Inc()
			table.Orders = orders
			table.OrderStatus = models.OrderStatusRunningOrder
			table.Version++
			return table, nil
		}
		if !isConflict(err) {
			return nil, fmt.Errorf("failed to persist order line: %w", err)
		}
		lastErr = err
		s.backoff(ctx)
	}

	s.logger.Warn("Add line exhausted retries",
		zap.Int64("table_id", tableID),
		zap.Error(lastErr))
	return nil, lastErr
}

// AdjustQuantity adds delta to a line's quantity; the line is removed
// entirely when the result drops to zero or below.
func (s *LedgerService) AdjustQuantity(ctx context.Context, tableID int64, lineIndex, delta int) (*models.Table, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.AdjustQuantity")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		table, err := s.tables.GetTable(ctx, tableID)
		if err != nil {
			return nil, err
		}

		if lineIndex < 0 || lineIndex >= len(table.Orders) {
			return nil, &apperr.InvalidIndexError{
				TableID: tableID,
				Index:   lineIndex,
				Length:  len(table.Orders),
			}
		}

		orders := cloneLines(table.Orders)
		orders[lineIndex].Quantity += delta
		if orders[lineIndex].Quantity <= 0 {
			orders = append(orders[:lineIndex], orders[lineIndex+1:]...)
		}

		status := models.OrderStatusRunningOrder
		if len(orders) == 0 {
			status = models.OrderStatusNewOrder
		}

		err = s.tables.UpdateTableOrders(ctx, table.ID, table.Version, orders, status)
		if err == nil {
			table.Orders = orders
			table.OrderStatus = status
			table.Version++
			return table, nil
		}
		if !isConflict(err) {
			return nil, fmt.Errorf("failed to persist quantity change: %w", err)
		}
		lastErr = err
		s.backoff(ctx)
	}

	s.logger.Warn("Adjust quantity exhausted retries",
		zap.Int64("table_id", tableID),
		zap.Error(lastErr))
	return nil, lastErr
}

func (s *LedgerService) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.retryBackoff):
	}
}

func cloneLines(lines models.OrderLines) models.OrderLines {
	out := make(models.OrderLines, len(lines))
	copy(out, lines)
	return out
}
