package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	ledger     *service.LedgerService
	settlement *service.SettlementService
	catalog    *service.CatalogService
	receiving  *service.ReceivingService
	aggregator *service.AggregatorService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	ledger *service.LedgerService,
	settlement *service.SettlementService,
	catalog *service.CatalogService,
	receiving *service.ReceivingService,
	aggregator *service.AggregatorService,
) *Handler {
	return &Handler{
		ledger:     ledger,
		settlement: settlement,
		catalog:    catalog,
		receiving:  receiving,
		aggregator: aggregator,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tables", h.createTable)
		v1.GET("/tables", h.listTables)
		v1.GET("/tables/:id", h.getTable)
		v1.POST("/tables/:id/lines", h.addLine)
		v1.PATCH("/tables/:id/lines/:index", h.adjustQuantity)
		v1.POST("/tables/:id/settle", h.settle)
		v1.GET("/tables/:id/history", h.tableHistory)

		v1.POST("/products", h.createProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.POST("/inventory", h.registerIngredient)
		v1.GET("/inventory", h.listInventory)
		v1.GET("/inventory/:ingredient", h.getInventoryItem)
		v1.GET("/inventory/:ingredient/movements", h.listMovements)
		v1.GET("/inventory/:ingredient/stock", h.cachedStock)
		v1.POST("/stock/receive", h.receiveStock)

		v1.POST("/vendors", h.createVendor)
		v1.GET("/vendors", h.listVendors)

		v1.GET("/history", h.listHistory)
		v1.GET("/reports/dues", h.duesReport)
		v1.GET("/reports/payments", h.paymentsReport)
		v1.GET("/reconciliation/backlog", h.backlogReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// branchCode extracts the branch scope. Every core operation takes it
// explicitly; there is no ambient branch state.
func branchCode(c *gin.Context) (string, bool) {
	branch := c.GetHeader("X-Branch-Code")
	if branch == "" {
		branch = c.Query("branch_code")
	}
	if branch == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing branch code"})
		return "", false
	}
	return branch, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeError maps the error taxonomy onto HTTP statuses. Structured errors
// keep the offending table/ingredient identifier in the message.
func writeError(c *gin.Context, err error) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		badIndex   *apperr.InvalidIndexError
		badUnit    *apperr.UnsupportedUnitError
		ambiguous  *apperr.AmbiguousIngredientError
		failed     *apperr.SettlementFailedError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &badIndex), errors.As(err, &badUnit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ambiguous), errors.Is(err, apperr.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &failed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) createTable(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}

	var table models.Table
	if err := c.ShouldBindJSON(&table); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	table.BranchCode = branch

	if err := h.catalog.CreateTable(c.Request.Context(), &table); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (h *Handler) listTables(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	tables, err := h.catalog.ListTables(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (h *Handler) getTable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	table, err := h.ledger.GetTable(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

type addLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
}

func (h *Handler) addLine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	table, err := h.ledger.AddLine(c.Request.Context(), id, req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

type adjustQuantityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *Handler) adjustQuantity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line index"})
		return
	}

	var req adjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	table, err := h.ledger.AdjustQuantity(c.Request.Context(), id, index, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) settle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	req.TableID = id
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	entry, err := h.settlement.Settle(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) createProduct(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}

	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	req.BranchCode = branch

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	req.BranchCode = branch

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), branch, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) registerIngredient(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}

	var req service.RegisterIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	req.BranchCode = branch

	item, err := h.catalog.RegisterIngredient(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) listInventory(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	items, err := h.catalog.ListInventory(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": items})
}

func (h *Handler) getInventoryItem(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	item, err := h.catalog.GetInventoryItem(c.Request.Context(), branch, c.Param("ingredient"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) listMovements(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	movements, err := h.catalog.ListMovements(c.Request.Context(), branch, c.Param("ingredient"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (h *Handler) cachedStock(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	ingredient := c.Param("ingredient")
	quantity, err := h.catalog.CachedStock(c.Request.Context(), branch, ingredient)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ingredient_name": ingredient, "quantity": quantity})
}

func (h *Handler) receiveStock(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}

	var req service.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	req.BranchCode = branch

	movement, err := h.receiving.ReceiveStock(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (h *Handler) createVendor(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}

	var vendor models.Vendor
	if err := c.ShouldBindJSON(&vendor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	vendor.BranchCode = branch

	if err := h.catalog.CreateVendor(c.Request.Context(), &vendor); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vendor)
}

func (h *Handler) listVendors(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	vendors, err := h.catalog.ListVendors(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": vendors})
}

func timeRange(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func (h *Handler) listHistory(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range", "details": err.Error()})
		return
	}

	entries, err := h.aggregator.History(c.Request.Context(), branch, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) tableHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.aggregator.TableHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) duesReport(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	groups, err := h.aggregator.DuesReport(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dues": groups})
}

func (h *Handler) paymentsReport(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range", "details": err.Error()})
		return
	}

	totals, err := h.aggregator.PaymentsReport(c.Request.Context(), branch, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": totals})
}

func (h *Handler) backlogReport(c *gin.Context) {
	branch, ok := branchCode(c)
	if !ok {
		return
	}
	entries, err := h.aggregator.BacklogReport(c.Request.Context(), branch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backlog": entries})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
