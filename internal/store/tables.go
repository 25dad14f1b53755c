package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
)

// CreateTable creates a new table for a branch
func (s *Store) CreateTable(ctx context.Context, table *models.Table) error {
	if table.Orders == nil {
		table.Orders = models.OrderLines{}
	}
	if table.OrderStatus == "" {
		table.OrderStatus = models.OrderStatusNewOrder
	}

	query := `
		INSERT INTO tables (branch_code, table_number, orders, order_status, version)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id, version, created_at, updated_at`

	return s.db.GetContext(ctx, table, query,
		table.BranchCode, table.TableNumber, table.Orders, table.OrderStatus)
}

// GetTable retrieves a table with its live order
func (s *Store) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	var table models.Table
	err := s.db.GetContext(ctx, &table, "SELECT * FROM tables WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &apperr.NotFoundError{Kind: "table", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// ListTables retrieves all tables for a branch
func (s *Store) ListTables(ctx context.Context, branchCode string) ([]models.Table, error) {
	var tables []models.Table
	err := s.db.SelectContext(ctx, &tables,
		"SELECT * FROM tables WHERE branch_code = $1 ORDER BY table_number", branchCode)
	return tables, err
}

// UpdateTableOrders replaces the full live order sequence via
// compare-and-swap on the version column. Every ledger mutation persists
// the whole sequence; there is no partial-update mode.
func (s *Store) UpdateTableOrders(ctx context.Context, tableID, version int64, orders models.OrderLines, orderStatus string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tables
		SET orders = $1, order_status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4`,
		orders, orderStatus, tableID, version)
	if err != nil {
		return mapConflict(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: table %d version %d", apperr.ErrConcurrencyConflict, tableID, version)
	}
	return nil
}

// CommitSettlement atomically appends the frozen history entry, empties the
// table's live order and sets the derived status label. The version check
// makes two concurrent settlements on the same table mutually exclusive: the
// loser sees ErrConcurrencyConflict and must re-read.
func (s *Store) CommitSettlement(ctx context.Context, entry *models.HistoryEntry, tableVersion int64, orderStatus string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tables
		SET orders = '[]'::jsonb, order_status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		orderStatus, entry.TableID, tableVersion)
	if err != nil {
		return mapConflict(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: table %d version %d", apperr.ErrConcurrencyConflict, entry.TableID, tableVersion)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlements
			(id, table_id, branch_code, orders, total, discounted_total, discount_percentage,
			 status, method, responsible, idempotency_key, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)`,
		entry.ID, entry.TableID, entry.BranchCode, entry.Orders,
		entry.Total, entry.DiscountedTotal, entry.DiscountPercentage,
		entry.Status, entry.Method, entry.Responsible, entry.IdempotencyKey, entry.SettledAt)
	if err != nil {
		return mapConflict(fmt.Errorf("failed to append history entry: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}
	return nil
}

// GetSettlementByIdempotencyKey retrieves a prior settlement for duplicate
// request detection. Returns nil when no settlement carries the key.
func (s *Store) GetSettlementByIdempotencyKey(ctx context.Context, key string) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.db.GetContext(ctx, &entry, historySelect+" WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

const historySelect = `
	SELECT id, table_id, branch_code, orders, total, discounted_total, discount_percentage,
	       status, method, COALESCE(responsible, '') AS responsible,
	       COALESCE(idempotency_key, '') AS idempotency_key, settled_at
	FROM settlements`

// ListHistory retrieves history entries for a branch, optionally bounded by
// a settled-at range, newest first.
func (s *Store) ListHistory(ctx context.Context, branchCode string, from, to *time.Time) ([]models.HistoryEntry, error) {
	query := historySelect + " WHERE branch_code = $1"
	args := []interface{}{branchCode}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND settled_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND settled_at <= $%d", len(args))
	}
	query += " ORDER BY settled_at DESC"

	var entries []models.HistoryEntry
	err := s.db.SelectContext(ctx, &entries, query, args...)
	return entries, err
}

// ListHistoryByTable retrieves the settlement history of a single table
func (s *Store) ListHistoryByTable(ctx context.Context, tableID int64) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := s.db.SelectContext(ctx, &entries,
		historySelect+" WHERE table_id = $1 ORDER BY settled_at ASC", tableID)
	return entries, err
}

// AddBacklogEntry appends a consumption failure to the reconciliation
// backlog. The settlement it belongs to is already committed and is never
// rolled back.
func (s *Store) AddBacklogEntry(ctx context.Context, entry *models.BacklogEntry) error {
	query := `
		INSERT INTO reconciliation_backlog
			(branch_code, settlement_id, ingredient_name, quantity_used, reason, resolved)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.BranchCode, entry.SettlementID, entry.IngredientName, entry.QuantityUsed, entry.Reason)
}

// ListBacklog retrieves unresolved consumption failures for a branch
func (s *Store) ListBacklog(ctx context.Context, branchCode string) ([]models.BacklogEntry, error) {
	var entries []models.BacklogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM reconciliation_backlog
		WHERE branch_code = $1 AND resolved = FALSE
		ORDER BY created_at ASC`, branchCode)
	return entries, err
}

// CountBacklog counts unresolved consumption failures across branches
func (s *Store) CountBacklog(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM reconciliation_backlog WHERE resolved = FALSE")
	return count, err
}
