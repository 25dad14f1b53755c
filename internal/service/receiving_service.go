package service

import (
	"context"
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

// ReceivingService increments on-hand stock from vendor invoices. It uses
// the same per-ingredient transactional primitive as the consumption engine,
// so restocking and settling can never interleave on one inventory row.
type ReceivingService struct {
	stock         StockStore
	cache         StockCache
	publisher     ReceiptPublisher
	logger        *zap.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// NewReceivingService creates a new stock receiving service
func NewReceivingService(stock StockStore, cache StockCache, publisher ReceiptPublisher, retryAttempts int, retryBackoff time.Duration) *ReceivingService {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &ReceivingService{
		stock:         stock,
		cache:         cache,
		publisher:     publisher,
		logger:        util.GetLogger(),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

// ReceiveStockRequest describes one received invoice line.
type ReceiveStockRequest struct {
	BranchCode     string          `json:"branch_code"`
	IngredientName string          `json:"ingredient_name" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit" binding:"required"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	InvoiceDate    string          `json:"invoice_date,omitempty"`
	VendorID       int64           `json:"vendor_id,omitempty"`
}

// ReceiveStock normalizes the received quantity to the ingredient's
// canonical unit and applies it atomically, appending the receipt to the
// audit trail.
func (s *ReceivingService) ReceiveStock(ctx context.Context, req *ReceiveStockRequest) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "ReceivingService.ReceiveStock")
	defer span.End()

	if !req.Quantity.IsPositive() {
		return nil, &apperr.ValidationError{
			Field:  "quantity",
			Reason: "received quantity must be positive",
		}
	}

	normalized, _, err := units.Normalize(req.Quantity, req.Unit)
	if err != nil {
		return nil, err
	}

	var movement *models.StockMovement
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		movement, err = s.stock.AdjustStockTx(ctx, store.StockAdjustment{
			BranchCode:     req.BranchCode,
			IngredientName: req.IngredientName,
			Delta:          normalized,
			Kind:           models.MovementKindReceipt,
			VendorID:       req.VendorID,
			UnitPrice:      req.UnitPrice,
			InvoiceDate:    req.InvoiceDate,
		})
		if err == nil {
			break
		}
		if !isConflict(err) {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}
	if movement == nil {
		return nil, lastErr
	}

	util.StockReceiptsTotal.Inc()

	if s.cache != nil {
		if _, err := s.cache.AdjustStock(ctx, req.BranchCode, req.IngredientName, normalized.String()); err != nil {
			s.logger.Warn("Failed to sync stock cache after receipt",
				zap.String("ingredient", req.IngredientName),
				zap.Error(err))
			_ = s.cache.InvalidateStock(ctx, req.BranchCode, req.IngredientName)
		}
	}

	if s.publisher != nil {
		event := &models.StockReceivedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockReceived,
				Timestamp: time.Now(),
			},
			BranchCode:      req.BranchCode,
			IngredientName:  req.IngredientName,
			QuantityAdded:   normalized,
			UpdatedQuantity: movement.UpdatedQuantity,
			VendorID:        req.VendorID,
		}
		if err := s.publisher.PublishStockReceived(ctx, event); err != nil {
			s.logger.Error("Failed to publish StockReceived event", zap.Error(err))
		}
	}

	s.logger.Info("Stock received",
		zap.String("ingredient", req.IngredientName),
		zap.String("added", normalized.String()),
		zap.String("on_hand", movement.UpdatedQuantity.String()))

	return movement, nil
}
