package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProduct retrieves a product scoped to a branch
func (s *Store) GetProduct(ctx context.Context, branchCode string, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE branch_code = $1 AND id = $2", branchCode, id)
	if err == sql.ErrNoRows {
		return nil, &apperr.NotFoundError{Kind: "product", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products for a branch
func (s *Store) ListProducts(ctx context.Context, branchCode string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE branch_code = $1 ORDER BY subcategory, name", branchCode)
	return products, err
}

// CreateProduct inserts a new catalog product with its recipe
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (branch_code, name, price, subcategory, recipe)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, product, query,
		product.BranchCode, product.Name, product.Price, product.Subcategory, product.Recipe)
}

// UpdateProduct updates a product's price, subcategory and recipe. Placed
// order lines carry snapshots, so history is unaffected.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, price = $2, subcategory = $3, recipe = $4, updated_at = NOW()
		WHERE branch_code = $5 AND id = $6`,
		product.Name, product.Price, product.Subcategory, product.Recipe,
		product.BranchCode, product.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperr.NotFoundError{Kind: "product", Key: fmt.Sprintf("%d", product.ID)}
	}
	return nil
}

// RegisterIngredient creates an inventory item. Quantity and unit must
// already be canonical; the service layer normalizes at the boundary.
func (s *Store) RegisterIngredient(ctx context.Context, item *models.InventoryItem) error {
	query := `
		INSERT INTO inventory (branch_code, ingredient_name, category, quantity, unit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, last_updated`

	err := s.db.GetContext(ctx, item, query,
		item.BranchCode, item.IngredientName, item.Category, item.Quantity, item.Unit)
	if isUniqueViolation(err) {
		return &apperr.ValidationError{
			Field:  "ingredient_name",
			Reason: fmt.Sprintf("ingredient %q already registered in branch %s", item.IngredientName, item.BranchCode),
		}
	}
	return err
}

// GetInventoryItem retrieves the unique inventory row for an ingredient.
// More than one match is a data-integrity hazard surfaced as
// AmbiguousIngredient, never resolved by picking the first row.
func (s *Store) GetInventoryItem(ctx context.Context, branchCode, ingredientName string) (*models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM inventory WHERE branch_code = $1 AND ingredient_name = $2",
		branchCode, ingredientName)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, &apperr.NotFoundError{Kind: "ingredient", Key: ingredientName}
	case 1:
		return &items[0], nil
	default:
		return nil, &apperr.AmbiguousIngredientError{
			BranchCode:     branchCode,
			IngredientName: ingredientName,
			Matches:        len(items),
		}
	}
}

// ListInventory retrieves all inventory items for a branch
func (s *Store) ListInventory(ctx context.Context, branchCode string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM inventory WHERE branch_code = $1 ORDER BY category, ingredient_name", branchCode)
	return items, err
}

// ListAllInventory retrieves inventory across branches (cache warm-up)
func (s *Store) ListAllInventory(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM inventory ORDER BY branch_code, ingredient_name")
	return items, err
}

// CountNegativeStock counts items currently below zero on-hand
func (s *Store) CountNegativeStock(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM inventory WHERE quantity < 0")
	return count, err
}

// StockAdjustment describes one atomic change to an ingredient's on-hand
// quantity. Both the consumption and the receiving path go through it.
type StockAdjustment struct {
	BranchCode     string
	IngredientName string
	Delta          decimal.Decimal
	Kind           string
	SettlementID   string
	VendorID       int64
	UnitPrice      decimal.Decimal
	InvoiceDate    string
}

// AdjustStockTx applies a single read-modify-write to one inventory row
// under a row lock and appends the audit movement in the same transaction.
// No floor at zero: negative on-hand is surfaced, not clamped, so the audit
// trail's arithmetic stays exact.
func (s *Store) AdjustStockTx(ctx context.Context, adj StockAdjustment) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rows []struct {
		ID       int64           `db:"id"`
		Quantity decimal.Decimal `db:"quantity"`
	}
	err = tx.SelectContext(ctx, &rows,
		"SELECT id, quantity FROM inventory WHERE branch_code = $1 AND ingredient_name = $2 FOR UPDATE",
		adj.BranchCode, adj.IngredientName)
	if err != nil {
		return nil, mapConflict(fmt.Errorf("failed to lock inventory: %w", err))
	}

	switch len(rows) {
	case 0:
		return nil, &apperr.NotFoundError{Kind: "ingredient", Key: adj.IngredientName}
	case 1:
	default:
		return nil, &apperr.AmbiguousIngredientError{
			BranchCode:     adj.BranchCode,
			IngredientName: adj.IngredientName,
			Matches:        len(rows),
		}
	}

	updated := rows[0].Quantity.Add(adj.Delta)

	_, err = tx.ExecContext(ctx,
		"UPDATE inventory SET quantity = $1, last_updated = NOW() WHERE id = $2",
		updated, rows[0].ID)
	if err != nil {
		return nil, mapConflict(fmt.Errorf("failed to update stock: %w", err))
	}

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
	}

	err = tx.GetContext(ctx, movement, `
		INSERT INTO stock_movements
			(branch_code, ingredient_name, delta, updated_quantity, kind, settlement_id, vendor_id, unit_price, invoice_date)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, 0), $8, NULLIF($9, ''))
		RETURNING id, created_at`,
		adj.BranchCode, adj.IngredientName, adj.Delta, updated, adj.Kind,
		adj.SettlementID, adj.VendorID, adj.UnitPrice, adj.InvoiceDate)
	if err != nil {
		return nil, mapConflict(fmt.Errorf("failed to append stock movement: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return movement, nil
}

// ListMovements retrieves the audit trail for an ingredient, newest first
func (s *Store) ListMovements(ctx context.Context, branchCode, ingredientName string) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, branch_code, ingredient_name, delta, updated_quantity, kind,
		       COALESCE(settlement_id, '') AS settlement_id,
		       COALESCE(vendor_id, 0) AS vendor_id,
		       COALESCE(unit_price, 0) AS unit_price,
		       COALESCE(invoice_date, '') AS invoice_date,
		       created_at
		FROM stock_movements
		WHERE branch_code = $1 AND ingredient_name = $2
		ORDER BY created_at DESC`,
		branchCode, ingredientName)
	return movements, err
}

// CreateVendor inserts a new vendor
func (s *Store) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	query := `
		INSERT INTO vendors (branch_code, name, phone, categories)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, vendor, query,
		vendor.BranchCode, vendor.Name, vendor.Phone, vendor.Categories)
}

// ListVendors retrieves all vendors for a branch
func (s *Store) ListVendors(ctx context.Context, branchCode string) ([]models.Vendor, error) {
	var vendors []models.Vendor
	err := s.db.SelectContext(ctx, &vendors,
		"SELECT * FROM vendors WHERE branch_code = $1 ORDER BY name", branchCode)
	return vendors, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// mapConflict translates Postgres serialization and deadlock failures into
// the retryable conflict sentinel.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", apperr.ErrConcurrencyConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
