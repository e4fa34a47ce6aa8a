package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/cart"
)

// CartHandler exposes cart mutations and checkout reconciliation.
type CartHandler struct {
	guard  *cart.Guard
	logger *zap.Logger
}

func NewCartHandler(guard *cart.Guard, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{guard: guard, logger: logger}
}

type addItemRequest struct {
	ItemID    string  `json:"item_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid cart item payload", err)
		return
	}

	m, err := h.guard.AddItem(c.Request.Context(), c.Param("cartId"), req.ItemID, req.Quantity, req.UnitPrice)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type updateItemRequest struct {
	Quantity *float64 `json:"quantity"`
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		badRequest(c, h.logger, "quantity must be provided", err)
		return
	}

	m, err := h.guard.UpdateItem(c.Request.Context(), c.Param("cartId"), c.Param("itemId"), *req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	m, err := h.guard.RemoveItem(c.Request.Context(), c.Param("cartId"), c.Param("itemId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *CartHandler) Snapshot(c *gin.Context) {
	snap, err := h.guard.Snapshot(c.Request.Context(), c.Param("cartId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type reconcileRequest struct {
	Stage         models.CheckoutStage `json:"stage"`
	Lines         []models.CartLine    `json:"lines"`
	AssertedTotal *float64             `json:"asserted_total"`
}

// Reconcile answers 200 when the client total holds and 409 with the restored
// snapshot when it does not.
func (h *CartHandler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AssertedTotal == nil {
		badRequest(c, h.logger, "stage and asserted_total must be provided", err)
		return
	}

	rec, err := h.guard.Reconcile(c.Request.Context(), c.Param("cartId"), req.Stage, req.Lines, *req.AssertedTotal)
	if errors.Is(err, models.ErrReconciliationMismatch) {
		c.JSON(http.StatusConflict, rec)
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
