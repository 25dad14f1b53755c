package service

import (
	"context"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/units"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService covers branch setup and catalog maintenance: products with
// recipes, ingredient registration, vendors and tables. Read paths serve the
// out-of-scope CRUD forms and reporting collaborators.
type CatalogService struct {
	store  *store.Store
	cache  StockCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st *store.Store, cache StockCache) *CatalogService {
	return &CatalogService{
		store:  st,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// RegisterIngredientRequest registers a new raw ingredient for a branch.
type RegisterIngredientRequest struct {
	BranchCode     string          `json:"branch_code"`
	IngredientName string          `json:"ingredient_name" binding:"required"`
	Category       string          `json:"category"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit" binding:"required"`
}

// RegisterIngredient normalizes the opening quantity so the item is stored
// canonical from its first day (display units convert at the boundary,
// never at rest).
func (s *CatalogService) RegisterIngredient(ctx context.Context, req *RegisterIngredientRequest) (*models.InventoryItem, error) {
	if req.Quantity.IsNegative() {
		return nil, &apperr.ValidationError{
			Field:  "quantity",
			Reason: "opening quantity cannot be negative",
		}
	}

	normalized, canonicalUnit, err := units.Normalize(req.Quantity, req.Unit)
	if err != nil {
		return nil, err
	}

	item := &models.InventoryItem{
		BranchCode:     req.BranchCode,
		IngredientName: req.IngredientName,
		Category:       req.Category,
		Quantity:       normalized,
		Unit:           canonicalUnit,
	}
	if err := s.store.RegisterIngredient(ctx, item); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InitStock(ctx, item.BranchCode, item.IngredientName, item.Quantity.String()); err != nil {
			s.logger.Warn("Failed to seed stock cache",
				zap.String("ingredient", item.IngredientName),
				zap.Error(err))
		}
	}

	s.logger.Info("Ingredient registered",
		zap.String("ingredient", item.IngredientName),
		zap.String("quantity", item.Quantity.String()),
		zap.String("unit", item.Unit))
	return item, nil
}

// GetInventoryItem returns the unique item for (branch, ingredient)
func (s *CatalogService) GetInventoryItem(ctx context.Context, branchCode, ingredientName string) (*models.InventoryItem, error) {
	return s.store.GetInventoryItem(ctx, branchCode, ingredientName)
}

// ListInventory returns all inventory items for a branch
func (s *CatalogService) ListInventory(ctx context.Context, branchCode string) ([]models.InventoryItem, error) {
	return s.store.ListInventory(ctx, branchCode)
}

// ListMovements returns an ingredient's audit trail, newest first
func (s *CatalogService) ListMovements(ctx context.Context, branchCode, ingredientName string) ([]models.StockMovement, error) {
	return s.store.ListMovements(ctx, branchCode, ingredientName)
}

// CachedStock returns the cached on-hand quantity for dashboard reads,
// falling back to the database and re-seeding the cache on a miss.
func (s *CatalogService) CachedStock(ctx context.Context, branchCode, ingredientName string) (string, error) {
	if s.cache != nil {
		if val, err := s.cache.GetStock(ctx, branchCode, ingredientName); err == nil {
			return val, nil
		}
	}

	item, err := s.store.GetInventoryItem(ctx, branchCode, ingredientName)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.InitStock(ctx, branchCode, ingredientName, item.Quantity.String()); err != nil {
			s.logger.Warn("Failed to re-seed stock cache",
				zap.String("ingredient", ingredientName),
				zap.Error(err))
		}
	}
	return item.Quantity.String(), nil
}

// ProductRequest creates or updates a catalog product.
type ProductRequest struct {
	BranchCode  string          `json:"branch_code"`
	Name        string          `json:"name" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Subcategory string          `json:"subcategory"`
	Recipe      models.Recipe   `json:"recipe"`
}

func (s *CatalogService) validateRecipe(recipe models.Recipe) error {
	for _, item := range recipe {
		if item.IngredientName == "" {
			return &apperr.ValidationError{Field: "recipe", Reason: "recipe entry missing ingredient name"}
		}
		if !item.QuantityUsed.IsPositive() {
			return &apperr.ValidationError{
				Field:  "recipe",
				Reason: "recipe quantity must be positive for ingredient " + item.IngredientName,
			}
		}
		if _, _, err := units.Normalize(item.QuantityUsed, item.Unit); err != nil {
			return err
		}
	}
	return nil
}

// CreateProduct adds a product with its recipe to the branch catalog
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if req.Price.IsNegative() {
		return nil, &apperr.ValidationError{Field: "price", Reason: "price cannot be negative"}
	}
	if err := s.validateRecipe(req.Recipe); err != nil {
		return nil, err
	}

	product := &models.Product{
		BranchCode:  req.BranchCode,
		Name:        req.Name,
		Price:       req.Price,
		Subcategory: req.Subcategory,
		Recipe:      req.Recipe,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct edits a product. Order lines keep their snapshots, so
// history and past consumption are unaffected.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if req.Price.IsNegative() {
		return nil, &apperr.ValidationError{Field: "price", Reason: "price cannot be negative"}
	}
	if err := s.validateRecipe(req.Recipe); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          id,
		BranchCode:  req.BranchCode,
		Name:        req.Name,
		Price:       req.Price,
		Subcategory: req.Subcategory,
		Recipe:      req.Recipe,
	}
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return s.store.GetProduct(ctx, req.BranchCode, id)
}

// GetProduct returns one product scoped to a branch
func (s *CatalogService) GetProduct(ctx context.Context, branchCode string, id int64) (*models.Product, error) {
	return s.store.GetProduct(ctx, branchCode, id)
}

// ListProducts returns the branch catalog
func (s *CatalogService) ListProducts(ctx context.Context, branchCode string) ([]models.Product, error) {
	return s.store.ListProducts(ctx, branchCode)
}

// CreateVendor adds a vendor to the branch
func (s *CatalogService) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	if vendor.Name == "" {
		return &apperr.ValidationError{Field: "name", Reason: "vendor name is required"}
	}
	return s.store.CreateVendor(ctx, vendor)
}

// ListVendors returns all vendors for a branch
func (s *CatalogService) ListVendors(ctx context.Context, branchCode string) ([]models.Vendor, error) {
	return s.store.ListVendors(ctx, branchCode)
}

// CreateTable provisions a table for a branch
func (s *CatalogService) CreateTable(ctx context.Context, table *models.Table) error {
	if table.TableNumber == "" {
		return &apperr.ValidationError{Field: "table_number", Reason: "table number is required"}
	}
	return s.store.CreateTable(ctx, table)
}

// ListTables returns all tables for a branch
func (s *CatalogService) ListTables(ctx context.Context, branchCode string) ([]models.Table, error) {
	return s.store.ListTables(ctx, branchCode)
}

// WarmStockCache seeds the cache with every inventory item's on-hand
// quantity at startup.
func (s *CatalogService) WarmStockCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	items, err := s.store.ListAllInventory(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.cache.InitStock(ctx, item.BranchCode, item.IngredientName, item.Quantity.String()); err != nil {
			s.logger.Error("Failed to seed stock cache",
				zap.String("ingredient", item.IngredientName),
				zap.Error(err))
		}
	}
	s.logger.Info("Stock cache warmed", zap.Int("items", len(items)))
	return nil
}
