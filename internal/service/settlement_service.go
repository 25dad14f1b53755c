package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// SettlementService freezes a table's live order into an immutable history
// entry with a payment disposition. The history append and the live-order
// clear share one compare-and-swap transaction on the table document, so two
// concurrent settlements of the same table cannot double-settle a line set.
// Inventory is never touched here: the settled snapshot is emitted
// downstream and a consumption failure does not roll the sale back.
type SettlementService struct {
	tables        TableStore
	publisher     SettlementPublisher
	logger        *zap.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// NewSettlementService creates a new settlement processor
func NewSettlementService(tables TableStore, publisher SettlementPublisher, retryAttempts int, retryBackoff time.Duration) *SettlementService {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &SettlementService{
		tables:        tables,
		publisher:     publisher,
		logger:        util.GetLogger(),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

// SettleRequest carries the payment disposition for one table.
type SettleRequest struct {
	TableID            int64           `json:"-"`
	Method             string          `json:"method" binding:"required"`
	Status             string          `json:"status" binding:"required"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	Responsible        string          `json:"responsible,omitempty"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
}

// Settle validates the disposition, computes totals, and commits the frozen
// history entry. Precondition failures reject with zero state change.
func (s *SettlementService) Settle(ctx context.Context, req *SettleRequest) (*models.HistoryEntry, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.Settle")
	defer span.End()

	if err := s.validate(req); err != nil {
		util.SettlementsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.tables.GetSettlementByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate settlement request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("settlement_id", existing.ID))
			return existing, nil
		}
	}

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		entry, err := s.settleOnce(ctx, req)
		if err == nil {
			s.afterCommit(ctx, entry)
			return entry, nil
		}
		if !isConflict(err) {
			if apperr.IsValidation(err) {
				util.SettlementsFailedTotal.WithLabelValues("validation").Inc()
			} else {
				util.SettlementsFailedTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		util.SettlementRetriesTotal.Inc()
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}

	util.SettlementsFailedTotal.WithLabelValues("conflict").Inc()
	return nil, &apperr.SettlementFailedError{
		TableID:  req.TableID,
		Attempts: s.retryAttempts,
		Err:      lastErr,
	}
}

// settleOnce performs one read-compute-commit round. A conflict means the
// table document changed between read and commit; the caller re-reads.
func (s *SettlementService) settleOnce(ctx context.Context, req *SettleRequest) (*models.HistoryEntry, error) {
	table, err := s.tables.GetTable(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	if len(table.Orders) == 0 {
		return nil, &apperr.ValidationError{
			Field:  "orders",
			Reason: fmt.Sprintf("table %d has no open order lines to settle", table.ID),
		}
	}

	total := decimal.Zero
	for _, line := range table.Orders {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	discounted := total.Mul(hundred.Sub(req.DiscountPercentage)).Div(hundred)

	responsible := ""
	if req.Status == models.PaymentStatusDue {
		responsible = req.Responsible
	}

	entry := &models.HistoryEntry{
		ID:                 uuid.New().String(),
		TableID:            table.ID,
		BranchCode:         table.BranchCode,
		Orders:             cloneLines(table.Orders),
		Total:              total,
		DiscountedTotal:    discounted,
		DiscountPercentage: req.DiscountPercentage,
		Status:             req.Status,
		Method:             req.Method,
		Responsible:        responsible,
		IdempotencyKey:     req.IdempotencyKey,
		SettledAt:          time.Now().UTC(),
	}

	if err := s.tables.CommitSettlement(ctx, entry, table.Version, statusLabel(entry)); err != nil {
		return nil, err
	}
	return entry, nil
}

// afterCommit reports the committed settlement. The sale is closed at this
// point; publishing failures are logged, never propagated.
func (s *SettlementService) afterCommit(ctx context.Context, entry *models.HistoryEntry) {
	util.SettlementsCommittedTotal.WithLabelValues(entry.Status, entry.Method).Inc()

	s.logger.Info("Settlement committed",
		zap.String("settlement_id", entry.ID),
		zap.Int64("table_id", entry.TableID),
		zap.String("status", entry.Status),
		zap.String("total", entry.Total.String()))

	if s.publisher == nil {
		return
	}

	event := &models.SettlementCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSettlementCommitted,
			Timestamp: time.Now(),
		},
		SettlementID:    entry.ID,
		TableID:         entry.TableID,
		BranchCode:      entry.BranchCode,
		Lines:           entry.Orders,
		Total:           entry.Total,
		DiscountedTotal: entry.DiscountedTotal,
		Status:          entry.Status,
		Method:          entry.Method,
	}

	if err := s.publisher.PublishSettlementCommitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SettlementCommitted event",
			zap.String("settlement_id", entry.ID),
			zap.Error(err))
	}
}

func (s *SettlementService) validate(req *SettleRequest) error {
	if !models.ValidPaymentMethod(req.Method) {
		return &apperr.ValidationError{
			Field:  "method",
			Reason: fmt.Sprintf("unknown payment method %q", req.Method),
		}
	}
	switch req.Status {
	case models.PaymentStatusSettled:
	case models.PaymentStatusDue:
		if strings.TrimSpace(req.Responsible) == "" {
			return &apperr.ValidationError{
				Field:  "responsible",
				Reason: "responsible party is required for due payments",
			}
		}
	default:
		return &apperr.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("unknown payment status %q", req.Status),
		}
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(hundred) {
		return &apperr.ValidationError{
			Field:  "discount_percentage",
			Reason: "discount must be between 0 and 100",
		}
	}
	return nil
}

func statusLabel(entry *models.HistoryEntry) string {
	if entry.Status == models.PaymentStatusDue {
		return fmt.Sprintf("Payment Due by %s", entry.Responsible)
	}
	return "Payment Successfully Settled"
}
