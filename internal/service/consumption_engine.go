package service

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/units"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IngredientResult reports the outcome of one ingredient's deduction.
type IngredientResult struct {
	IngredientName  string          `json:"ingredient_name"`
	QuantityUsed    decimal.Decimal `json:"quantity_used"`
	Unit            string          `json:"unit"`
	UpdatedQuantity decimal.Decimal `json:"updated_quantity"`
	Applied         bool            `json:"applied"`
	Reason          string          `json:"reason,omitempty"`
}

// ConsumptionResult enumerates per-ingredient outcomes for one settlement.
// Partial failures are listed, never silent.
type ConsumptionResult struct {
	SettlementID string             `json:"settlement_id"`
	Results      []IngredientResult `json:"results"`
	Applied      int                `json:"applied"`
	Failed       int                `json:"failed"`
}

// ConsumptionEngine deducts the ingredients consumed by a committed
// settlement. Usage is aggregated across all lines first (several products
// can share an ingredient), then each ingredient gets its own atomic
// read-modify-write. One ingredient failing does not abort the others; the
// failure lands in the reconciliation backlog instead.
type ConsumptionEngine struct {
	stock         StockStore
	backlog       BacklogStore
	cache         StockCache
	publisher     ConsumptionPublisher
	logger        *zap.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// NewConsumptionEngine creates a new inventory consumption engine
func NewConsumptionEngine(stock StockStore, backlog BacklogStore, cache StockCache, publisher ConsumptionPublisher, retryAttempts int, retryBackoff time.Duration) *ConsumptionEngine {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &ConsumptionEngine{
		stock:         stock,
		backlog:       backlog,
		cache:         cache,
		publisher:     publisher,
		logger:        util.GetLogger(),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

type ingredientUsage struct {
	name  string
	total decimal.Decimal
	unit  string
	err   error
}

// Consume aggregates normalized recipe usage over the settled lines and
// applies one deduction per ingredient. The settlement is already committed;
// nothing here can roll it back.
func (e *ConsumptionEngine) Consume(ctx context.Context, branchCode, settlementID string, lines models.OrderLines) *ConsumptionResult {
	ctx, span := util.StartSpan(ctx, "ConsumptionEngine.Consume")
	defer span.End()

	usages := aggregateUsage(lines)
	result := &ConsumptionResult{SettlementID: settlementID}

	for _, usage := range usages {
		res := e.consumeOne(ctx, branchCode, settlementID, usage)
		result.Results = append(result.Results, res)
		if res.Applied {
			result.Applied++
		} else {
			result.Failed++
		}
	}

	e.logger.Info("Consumption finished",
		zap.String("settlement_id", settlementID),
		zap.Int("applied", result.Applied),
		zap.Int("failed", result.Failed))

	if e.publisher != nil {
		event := &models.StockConsumedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockConsumed,
				Timestamp: time.Now(),
			},
			SettlementID: settlementID,
			BranchCode:   branchCode,
			Applied:      result.Applied,
			Failed:       result.Failed,
		}
		if err := e.publisher.PublishStockConsumed(ctx, event); err != nil {
			e.logger.Error("Failed to publish StockConsumed event", zap.Error(err))
		}
	}

	return result
}

// consumeOne applies a single ingredient's deduction with bounded retries on
// document contention. No floor at zero: a negative result is surfaced to
// operators, because clamping would break the audit trail's arithmetic.
func (e *ConsumptionEngine) consumeOne(ctx context.Context, branchCode, settlementID string, usage ingredientUsage) IngredientResult {
	res := IngredientResult{
		IngredientName: usage.name,
		QuantityUsed:   usage.total,
		Unit:           usage.unit,
	}

	if usage.err != nil {
		res.Reason = failureReason(usage.err)
		e.recordFailure(ctx, branchCode, settlementID, usage, usage.err)
		return res
	}

	start := time.Now()
	defer func() {
		util.StockAdjustLatency.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < e.retryAttempts; attempt++ {
		movement, err := e.stock.AdjustStockTx(ctx, store.StockAdjustment{
			BranchCode:     branchCode,
			IngredientName: usage.name,
			Delta:          usage.total.Neg(),
			Kind:           models.MovementKindConsumption,
			SettlementID:   settlementID,
		})
		if err == nil {
			util.StockDeductionsTotal.Inc()
			res.Applied = true
			res.UpdatedQuantity = movement.UpdatedQuantity
			e.syncCache(ctx, branchCode, usage.name, usage.total.Neg())
			return res
		}
		if !isConflict(err) {
			res.Reason = failureReason(err)
			e.recordFailure(ctx, branchCode, settlementID, usage, err)
			return res
		}
		lastErr = err
		select {
		case <-ctx.Done():
			res.Reason = failureReason(ctx.Err())
			e.recordFailure(ctx, branchCode, settlementID, usage, ctx.Err())
			return res
		case <-time.After(e.retryBackoff):
		}
	}

	res.Reason = failureReason(lastErr)
	e.recordFailure(ctx, branchCode, settlementID, usage,
		&apperr.ConsumptionFailedError{SettlementID: settlementID, IngredientName: usage.name, Err: lastErr})
	return res
}

// recordFailure pushes the failed deduction onto the reconciliation backlog
// and reports it. Both are best-effort; the discrepancy is surfaced either
// way through the returned result list.
func (e *ConsumptionEngine) recordFailure(ctx context.Context, branchCode, settlementID string, usage ingredientUsage, cause error) {
	reason := failureReason(cause)
	util.ConsumptionFailuresTotal.WithLabelValues(reason).Inc()

	e.logger.Error("Ingredient deduction failed",
		zap.String("settlement_id", settlementID),
		zap.String("ingredient", usage.name),
		zap.String("reason", reason),
		zap.Error(cause))

	if e.backlog != nil {
		entry := &models.BacklogEntry{
			BranchCode:     branchCode,
			SettlementID:   settlementID,
			IngredientName: usage.name,
			QuantityUsed:   usage.total,
			Reason:         cause.Error(),
		}
		if err := e.backlog.AddBacklogEntry(ctx, entry); err != nil {
			e.logger.Error("Failed to record reconciliation backlog entry",
				zap.String("ingredient", usage.name),
				zap.Error(err))
		}
	}

	if e.publisher != nil {
		event := &models.ConsumptionFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeConsumptionFailed,
				Timestamp: time.Now(),
			},
			SettlementID:   settlementID,
			BranchCode:     branchCode,
			IngredientName: usage.name,
			QuantityUsed:   usage.total,
			Reason:         reason,
		}
		if err := e.publisher.PublishConsumptionFailed(ctx, event); err != nil {
			e.logger.Error("Failed to publish ConsumptionFailed event", zap.Error(err))
		}
	}
}

func (e *ConsumptionEngine) syncCache(ctx context.Context, branchCode, ingredientName string, delta decimal.Decimal) {
	if e.cache == nil {
		return
	}
	if _, err := e.cache.AdjustStock(ctx, branchCode, ingredientName, delta.String()); err != nil {
		e.logger.Warn("Failed to sync stock cache",
			zap.String("ingredient", ingredientName),
			zap.Error(err))
		// drop the stale snapshot so the next read re-seeds from the database
		_ = e.cache.InvalidateStock(ctx, branchCode, ingredientName)
	}
}

// aggregateUsage fans usage in by ingredient across every line and recipe
// entry, normalizing each entry's quantity before summing so receiving-unit
// differences cannot skew the total. Order of first appearance is kept so
// deductions apply deterministically.
func aggregateUsage(lines models.OrderLines) []ingredientUsage {
	var order []string
	byName := make(map[string]*ingredientUsage)

	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		for _, item := range line.Recipe {
			usage, ok := byName[item.IngredientName]
			if !ok {
				usage = &ingredientUsage{name: item.IngredientName, total: decimal.Zero}
				byName[item.IngredientName] = usage
				order = append(order, item.IngredientName)
			}
			if usage.err != nil {
				continue
			}

			normalized, unit, err := units.Normalize(item.QuantityUsed, item.Unit)
			if err != nil {
				usage.err = err
				continue
			}
			usage.total = usage.total.Add(normalized.Mul(qty))
			usage.unit = unit
		}
	}

	out := make([]ingredientUsage, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func failureReason(err error) string {
	var nf *apperr.NotFoundError
	var amb *apperr.AmbiguousIngredientError
	var unit *apperr.UnsupportedUnitError

	switch {
	case errors.As(err, &nf):
		return "unknown_ingredient"
	case errors.As(err, &amb):
		return "ambiguous_ingredient"
	case errors.As(err, &unit):
		return "unsupported_unit"
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
