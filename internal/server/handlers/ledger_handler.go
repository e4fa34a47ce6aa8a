package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/ledger"
)

// LedgerHandler exposes the daily ledger over HTTP.
type LedgerHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

func NewLedgerHandler(svc *ledger.Service, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{svc: svc, logger: logger}
}

// List returns the entries of one date.
func (h *LedgerHandler) List(c *gin.Context) {
	entries, err := h.svc.ListByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Param("date"), "entries": entries})
}

// Summary returns the day totals.
func (h *LedgerHandler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), c.Param("date"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// OpenSession returns editable drafts with the carried balance for ?items=a,b.
func (h *LedgerHandler) OpenSession(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("items"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	entries, err := h.svc.OpenSession(c.Request.Context(), c.Param("date"), ids)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Param("date"), "entries": entries})
}

type saveLedgerRequest struct {
	Entries []map[string]any `json:"entries"`
}

// Save upserts a batch of entries. Loosely typed numbers are coerced and the
// coerced fields are reported back.
func (h *LedgerHandler) Save(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, h.logger, "unable to read request body", err)
		return
	}

	var req saveLedgerRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		badRequest(c, h.logger, "invalid ledger payload", err)
		return
	}

	date := c.Param("date")
	inputs := make([]models.LedgerInput, 0, len(req.Entries))
	coerced := make(map[string][]string)
	for _, raw := range req.Entries {
		in, fields := ledger.InputFromMap(raw)
		if len(fields) > 0 {
			coerced[in.ItemID] = fields
			h.logger.Warn("ledger input coerced to zero",
				zap.String("date", date),
				zap.String("item_id", in.ItemID),
				zap.Strings("fields", fields))
		}
		inputs = append(inputs, in)
	}

	report, err := h.svc.SaveBatch(c.Request.Context(), date, inputs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if len(report.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"report": report, "coerced": coerced})
}

// DeleteItem removes one entry.
func (h *LedgerHandler) DeleteItem(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), sessionFrom(c), c.Param("itemId"), c.Param("date")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDate removes every entry of a date.
func (h *LedgerHandler) DeleteDate(c *gin.Context) {
	report, err := h.svc.DeleteDate(c.Request.Context(), sessionFrom(c), c.Param("date"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type purgeRequest struct {
	Days *int `json:"days"`
}

// Purge deletes entries older than the requested number of days.
func (h *LedgerHandler) Purge(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Days == nil {
		badRequest(c, h.logger, "days must be provided", err)
		return
	}

	report, err := h.svc.PurgeOlderThan(c.Request.Context(), sessionFrom(c), *req.Days)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type recomputeRequest struct {
	From string `json:"from"`
}

// Recompute re-derives the carried balances of one item from a date onwards.
func (h *LedgerHandler) Recompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid recompute payload", err)
		return
	}

	entries, err := h.svc.RecomputeForward(c.Request.Context(), sessionFrom(c), c.Param("itemId"), req.From)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": c.Param("itemId"), "entries": entries})
}

// History lists an item's entries, oldest first.
func (h *LedgerHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, h.logger, "limit must be a non-negative integer", err)
		return
	}

	entries, err := h.svc.ItemHistory(c.Request.Context(), c.Param("itemId"), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": c.Param("itemId"), "entries": entries})
}
