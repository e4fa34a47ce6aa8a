package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/server/handlers"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Ledger  *handlers.LedgerHandler
	Catalog *handlers.CatalogHandler
	Cart    *handlers.CartHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, adminToken string, store Pinger, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/", handlers.SessionMiddleware(adminToken))

	ledger := api.Group("/ledger")
	ledger.POST("/purge", h.Ledger.Purge)
	ledger.POST("/items/:itemId/recompute", h.Ledger.Recompute)
	ledger.GET("/items/:itemId/history", h.Ledger.History)
	ledger.GET("/:date", h.Ledger.List)
	ledger.GET("/:date/summary", h.Ledger.Summary)
	ledger.GET("/:date/session", h.Ledger.OpenSession)
	ledger.PUT("/:date", h.Ledger.Save)
	ledger.DELETE("/:date", h.Ledger.DeleteDate)
	ledger.DELETE("/:date/items/:itemId", h.Ledger.DeleteItem)

	catalog := api.Group("/catalog")
	catalog.GET("/items", h.Catalog.ListItems)
	catalog.GET("/items/:itemId", h.Catalog.GetItem)
	catalog.POST("/items", h.Catalog.CreateItem)
	catalog.POST("/bulk-update", h.Catalog.BulkUpdate)

	api.GET("/audit", h.Catalog.ListAudit)

	carts := api.Group("/carts/:cartId")
	carts.GET("/snapshot", h.Cart.Snapshot)
	carts.POST("/items", h.Cart.AddItem)
	carts.PATCH("/items/:itemId", h.Cart.UpdateItem)
	carts.DELETE("/items/:itemId", h.Cart.RemoveItem)
	carts.POST("/reconcile", h.Cart.Reconcile)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("operator", c.GetHeader("X-Operator")))
	}
}
