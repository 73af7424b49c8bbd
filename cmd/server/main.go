package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/config"
	"github.com/fieldserve/checkout-portal/internal/database"
	"github.com/fieldserve/checkout-portal/internal/handler"
	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/logger"
	"github.com/fieldserve/checkout-portal/internal/middleware"
	"github.com/fieldserve/checkout-portal/internal/queue"
	"github.com/fieldserve/checkout-portal/internal/repository"
	"github.com/fieldserve/checkout-portal/internal/router"
	"github.com/fieldserve/checkout-portal/internal/service"
)

func main() {
	// .env is a development convenience; production injects real env vars.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	clk := clock.NewSystem()

	sessionRepo := repository.NewSessionRepo(db)
	invoiceRepo := repository.NewInvoiceRepo(db)
	txnRepo := repository.NewTransactionRepo(db)

	processor := helcim.NewClient(cfg.HelcimAPIURL, cfg.HelcimToken)
	events := queue.NewPublisher()

	guard := service.NewLifecycleGuard(sessionRepo, clk)
	sessions := service.NewSessionService(sessionRepo, guard, clk, events)
	reconciler := service.NewInvoiceReconciler(invoiceRepo, clk)
	paymentInit := service.NewPaymentInitService(processor, invoiceRepo, txnRepo, clk, cfg.PortalBaseURL)
	paymentValidation := service.NewPaymentValidationService(processor, txnRepo, reconciler, clk, events)

	sessionHandler := handler.NewSessionHandler(sessions, invoiceRepo)
	paymentHandler := handler.NewPaymentHandler(paymentInit, paymentValidation)
	operatorHandler := handler.NewOperatorHandler(cfg.OperatorEmail, cfg.OperatorHash, cfg.JWTSecret, cfg.AccessTTLMin, txnRepo, clk)

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Get().Warn("redis unavailable, rate limiting and response caching disabled")
	}
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	rateMW := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	go func() {
		if err := queue.StartPaymentConsumer(); err != nil {
			logger.LogError("main", "main", "payment consumer stopped", nil, err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	router.RegisterRoutes(e)
	router.RegisterCustomer(e, sessionHandler, paymentHandler, cacheMW, rateMW)
	router.RegisterOperator(e, operatorHandler, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
