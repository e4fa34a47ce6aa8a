package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/audit"
	"github.com/mamadbah2/freshledger/internal/service/bulk"
	"github.com/mamadbah2/freshledger/internal/service/catalog"
)

// CatalogHandler serves catalog reads, the bulk engine and the audit trail.
type CatalogHandler struct {
	catalog *catalog.Service
	bulk    *bulk.Service
	audit   *audit.Trail
	logger  *zap.Logger
}

func NewCatalogHandler(catalogSvc *catalog.Service, bulkSvc *bulk.Service, trail *audit.Trail, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{catalog: catalogSvc, bulk: bulkSvc, audit: trail, logger: logger}
}

func (h *CatalogHandler) ListItems(c *gin.Context) {
	items, err := h.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CatalogHandler) GetItem(c *gin.Context) {
	item, err := h.catalog.Get(c.Request.Context(), c.Param("itemId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type createItemRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rate      int64  `json:"rate"`
	Available bool   `json:"available"`
}

func (h *CatalogHandler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid catalog item payload", err)
		return
	}

	item, err := h.catalog.Create(c.Request.Context(), sessionFrom(c), models.CatalogItem{
		ID:        req.ID,
		Name:      req.Name,
		Rate:      req.Rate,
		Available: req.Available,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// BulkUpdate decodes the typed request strictly: unknown fields and
// non-boolean availability are rejected before the engine runs.
func (h *CatalogHandler) BulkUpdate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, h.logger, "unable to read request body", err)
		return
	}

	var req models.BulkUpdateRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("bulk update payload rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bulk update payload", "detail": err.Error()})
		return
	}

	result, err := h.bulk.BulkUpdate(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"result": result, "fields": verr.Fields})
			return
		}
		// The result carries the per-attempt errors; the message stays generic
		// for store failures.
		status, msg := errorStatus(c, h.logger, err)
		c.JSON(status, gin.H{"result": result, "error": msg})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) ListAudit(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, h.logger, "limit must be an integer", err)
		return
	}

	entries, err := h.audit.Recent(c.Request.Context(), sessionFrom(c), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
