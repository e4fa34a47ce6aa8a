package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/cache"
	"github.com/mamadbah2/freshledger/internal/config"
	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/repository/memory"
	"github.com/mamadbah2/freshledger/internal/repository/mongodb"
	"github.com/mamadbah2/freshledger/internal/repository/sheets"
	"github.com/mamadbah2/freshledger/internal/scheduler"
	"github.com/mamadbah2/freshledger/internal/server/handlers"
	"github.com/mamadbah2/freshledger/internal/server/router"
	auditsvc "github.com/mamadbah2/freshledger/internal/service/audit"
	bulksvc "github.com/mamadbah2/freshledger/internal/service/bulk"
	cartsvc "github.com/mamadbah2/freshledger/internal/service/cart"
	catalogsvc "github.com/mamadbah2/freshledger/internal/service/catalog"
	ledgersvc "github.com/mamadbah2/freshledger/internal/service/ledger"
	"github.com/mamadbah2/freshledger/internal/service/pricing"
	"github.com/mamadbah2/freshledger/pkg/clients/webhook"
	"github.com/mamadbah2/freshledger/pkg/logger"
)

// backingStore is everything the services need from the ledger/catalog/audit store.
type backingStore interface {
	ledgersvc.Repository
	bulksvc.CatalogRepository
	catalogsvc.Repository
	auditsvc.Store
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	var (
		store  backingStore
		pinger router.Pinger
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = memory.New()
		baseLogger.Warn("using in-memory store, data is lost on restart")
	default:
		mongoRepo, err := mongodb.NewMongoDBRepository(startCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoRepo
		pinger = mongoRepo
	}

	var (
		snapshots cartsvc.SnapshotStore  = cache.NewMemorySnapshots(cfg.Cart.SnapshotTTL)
		claims    bulksvc.RequestClaimer = cache.NewMemoryClaims()
		locker    scheduler.Locker       = cache.NoopLocker{}
	)
	if cfg.Redis.Enabled() {
		var redisClient *redis.Client
		redisClient, err = cache.NewRedisClient(startCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			baseLogger.Fatal("failed to init redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		snapshots = cache.NewRedisSnapshots(redisClient, cfg.Cart.SnapshotTTL)
		claims = cache.NewRedisClaims(redisClient)
		locker = cache.NewRedisLocker(redisClient)
		baseLogger.Info("redis enabled for cart snapshots, request claims and job locks")
	}

	trail := auditsvc.NewTrail(store, baseLogger.Named("svc.audit"))
	if cfg.Sheets.SpreadsheetID != "" {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		trail.AddSink("sheets", sheets.NewAuditSheet(sheetsRepo, cfg.Sheets.AuditRange))
		baseLogger.Info("audit export to google sheets enabled")
	}
	if cfg.AuditWebhook.URL != "" {
		trail.AddSink("webhook", webhook.NewClient(cfg.AuditWebhook))
		baseLogger.Info("audit webhook enabled")
	}

	location, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	ledgerSvc := ledgersvc.NewService(store, baseLogger.Named("svc.ledger"),
		ledgersvc.WithLocation(location),
		ledgersvc.WithSaveAttempts(cfg.Ledger.SaveAttempts),
		ledgersvc.WithConcurrency(cfg.Ledger.Concurrency),
	)
	catalogSvc := catalogsvc.NewService(store, baseLogger.Named("svc.catalog"))
	bulkSvc := bulksvc.NewService(store, trail, baseLogger.Named("svc.bulk"),
		bulksvc.WithMaxRetries(cfg.Bulk.MaxRetries),
		bulksvc.WithRequestClaimer(claims),
	)
	normalizer := pricing.NewNormalizer(pricing.Limits{Min: cfg.Pricing.QuantityMin, Max: cfg.Pricing.QuantityMax})
	guard := cartsvc.NewGuard(snapshots, normalizer, models.DiscountConfig{
		Enabled:       cfg.Discount.Enabled,
		Percentage:    cfg.Discount.Percent,
		MinimumAmount: cfg.Discount.MinAmount,
	}, baseLogger.Named("svc.cart"), cartsvc.WithPriceResolver(store))

	engine := router.New(router.Handlers{
		Ledger:  handlers.NewLedgerHandler(ledgerSvc, baseLogger.Named("handlers.ledger")),
		Catalog: handlers.NewCatalogHandler(catalogSvc, bulkSvc, trail, baseLogger.Named("handlers.catalog")),
		Cart:    handlers.NewCartHandler(guard, baseLogger.Named("handlers.cart")),
	}, cfg.Auth.AdminToken, pinger, baseLogger.Named("router"))

	// Initialize Scheduler
	sched := scheduler.NewScheduler(scheduler.Config{
		RetentionDays: cfg.Ledger.RetentionDays,
		PurgeSpec:     cfg.Ledger.PurgeCron,
		SummarySpec:   cfg.Ledger.SummaryCron,
		Location:      location,
	}, ledgerSvc, locker, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
