package service

import (
	"context"
	"sort"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// DueGroup sums everything one responsible party owes across settlements.
type DueGroup struct {
	Responsible     string            `json:"responsible"`
	Total           decimal.Decimal   `json:"total"`
	DiscountedTotal decimal.Decimal   `json:"discounted_total"`
	LastTimestamp   time.Time         `json:"last_timestamp"`
	Orders          models.OrderLines `json:"orders"`
	Entries         int               `json:"entries"`
}

// MethodTotal sums settled turnover per payment method.
type MethodTotal struct {
	Method          string          `json:"method"`
	Total           decimal.Decimal `json:"total"`
	DiscountedTotal decimal.Decimal `json:"discounted_total"`
	Entries         int             `json:"entries"`
}

// GroupDues groups due history entries by responsible party, summing totals,
// keeping the most recent timestamp and the union of constituent lines.
// Entries without a responsible party fall under "Unknown".
func GroupDues(entries []models.HistoryEntry) []DueGroup {
	byName := make(map[string]*DueGroup)
	var order []string

	for _, entry := range entries {
		if entry.Status != models.PaymentStatusDue {
			continue
		}
		responsible := entry.Responsible
		if responsible == "" {
			responsible = "Unknown"
		}

		group, ok := byName[responsible]
		if !ok {
			group = &DueGroup{
				Responsible:     responsible,
				Total:           decimal.Zero,
				DiscountedTotal: decimal.Zero,
			}
			byName[responsible] = group
			order = append(order, responsible)
		}

		group.Total = group.Total.Add(entry.Total)
		group.DiscountedTotal = group.DiscountedTotal.Add(entry.DiscountedTotal)
		group.Orders = append(group.Orders, entry.Orders...)
		group.Entries++
		if entry.SettledAt.After(group.LastTimestamp) {
			group.LastTimestamp = entry.SettledAt
		}
	}

	out := make([]DueGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Responsible < out[j].Responsible })
	return out
}

// GroupByMethod groups settled history entries by payment method for daily
// totals. Due entries are excluded; they belong to GroupDues.
func GroupByMethod(entries []models.HistoryEntry) []MethodTotal {
	byMethod := make(map[string]*MethodTotal)

	for _, entry := range entries {
		if entry.Status != models.PaymentStatusSettled {
			continue
		}
		total, ok := byMethod[entry.Method]
		if !ok {
			total = &MethodTotal{
				Method:          entry.Method,
				Total:           decimal.Zero,
				DiscountedTotal: decimal.Zero,
			}
			byMethod[entry.Method] = total
		}
		total.Total = total.Total.Add(entry.Total)
		total.DiscountedTotal = total.DiscountedTotal.Add(entry.DiscountedTotal)
		total.Entries++
	}

	out := make([]MethodTotal, 0, len(byMethod))
	for _, total := range byMethod {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// BacklogReader lists unresolved consumption failures.
type BacklogReader interface {
	ListBacklog(ctx context.Context, branchCode string) ([]models.BacklogEntry, error)
}

// AggregatorService serves the read-only dues and payment reports. It only
// consumes history entries and never mutates state.
type AggregatorService struct {
	history HistoryStore
	backlog BacklogReader
}

// NewAggregatorService creates a new report aggregator
func NewAggregatorService(history HistoryStore, backlog BacklogReader) *AggregatorService {
	return &AggregatorService{history: history, backlog: backlog}
}

// BacklogReport returns the unresolved consumption failures operators still
// have to reconcile by hand
func (s *AggregatorService) BacklogReport(ctx context.Context, branchCode string) ([]models.BacklogEntry, error) {
	return s.backlog.ListBacklog(ctx, branchCode)
}

// DuesReport returns outstanding dues grouped by responsible party
func (s *AggregatorService) DuesReport(ctx context.Context, branchCode string) ([]DueGroup, error) {
	entries, err := s.history.ListHistory(ctx, branchCode, nil, nil)
	if err != nil {
		return nil, err
	}
	return GroupDues(entries), nil
}

// PaymentsReport returns settled turnover grouped by method within an
// optional time range
func (s *AggregatorService) PaymentsReport(ctx context.Context, branchCode string, from, to *time.Time) ([]MethodTotal, error) {
	entries, err := s.history.ListHistory(ctx, branchCode, from, to)
	if err != nil {
		return nil, err
	}
	return GroupByMethod(entries), nil
}

// History returns raw history entries for reporting collaborators
func (s *AggregatorService) History(ctx context.Context, branchCode string, from, to *time.Time) ([]models.HistoryEntry, error) {
	return s.history.ListHistory(ctx, branchCode, from, to)
}

// TableHistory returns one table's past settlements, oldest first
func (s *AggregatorService) TableHistory(ctx context.Context, tableID int64) ([]models.HistoryEntry, error) {
	return s.history.ListHistoryByTable(ctx, tableID)
}
