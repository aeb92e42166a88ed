package main

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/avelychko/bookmarket-backend/config"
	"github.com/avelychko/bookmarket-backend/gateway"
	"github.com/avelychko/bookmarket-backend/handlers"
	"github.com/avelychko/bookmarket-backend/logging"
	"github.com/avelychko/bookmarket-backend/service"
	"github.com/avelychko/bookmarket-backend/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel)

	// Database connection
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	st := store.NewGormStore(db)
	if err := st.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Payment provider client
	if cfg.PayPal.ClientID == "" || cfg.PayPal.Secret == "" {
		logger.Fatal().Msg("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set")
	}
	paypal := gateway.NewPayPalClient(cfg.PayPal.Mode, cfg.PayPal.ClientID, cfg.PayPal.Secret)

	svc := service.New(st, paypal, cfg.Payments, logger)

	sweeper := service.NewSweeper(svc, st, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reconciliation sweep")
	}
	defer sweeper.Stop()

	txnHandler := handlers.NewTransactionHandler(svc)
	listingHandler := handlers.NewListingHandler(st)

	app := fiber.New()
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		AllowHeaders: "Content-Type, Authorization, X-User-ID",
	}))

	// Routes
	app.Get("/health", txnHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/listings", handlers.RequireUser, listingHandler.CreateListing)
	app.Get("/listings", listingHandler.ListListings)
	app.Get("/listings/:id", listingHandler.GetListing)

	app.Post("/payments/initiate/:listing_id", handlers.RequireUser, txnHandler.InitiatePayment)
	app.Get("/payments/execute", handlers.RequireUser, txnHandler.ExecutePayment)
	app.Get("/payments/cancel", handlers.RequireUser, txnHandler.CancelPayment)

	app.Post("/transactions/:id/confirm-shipment", handlers.RequireUser, txnHandler.SellerConfirmShipment)
	app.Post("/transactions/:id/confirm-receipt", handlers.RequireUser, txnHandler.BuyerConfirmReceipt)
	app.Post("/transactions/:id/dispute", handlers.RequireUser, txnHandler.BuyerDispute)
	app.Get("/transactions/purchases", handlers.RequireUser, txnHandler.ListPurchases)
	app.Get("/transactions/sales", handlers.RequireUser, txnHandler.ListSales)

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
