package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/api"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/logging"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/notify"
	"github.com/xtrntr/papertrade/internal/quote"
	"go.uber.org/zap"
)

// demoQuotes prices the symbols served when no quote API is configured.
var demoQuotes = []models.Quote{
	{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.RequireFromString("189.84")},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.RequireFromString("415.50")},
	{Symbol: "NFLX", Name: "Netflix, Inc.", Price: decimal.RequireFromString("628.41")},
	{Symbol: "GOOG", Name: "Alphabet Inc.", Price: decimal.RequireFromString("171.95")},
	{Symbol: "AMZN", Name: "Amazon.com, Inc.", Price: decimal.RequireFromString("183.63")},
}

// Main entry point: sets up the store, quote source, services and HTTP server
func main() {
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close(context.Background())

	var quotes quote.Provider
	if cfg.QuoteAPIURL != "" {
		quotes = quote.NewClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.QuoteTimeout, logger)
		logger.Info("using quote api", zap.String("url", cfg.QuoteAPIURL))
	} else {
		quotes = quote.NewStatic(demoQuotes...)
		logger.Warn("QUOTE_API_URL not set, serving demo quotes")
	}

	hub := notify.NewHub(cfg.CORSOrigins, logger)
	ex := exchange.NewExchange(store, quotes, exchange.Policy{AllowFullSpend: cfg.AllowFullSpend}, logger)
	ex.Notifier = hub
	authService := auth.NewAuthService(store, []byte(cfg.JWTSecret), cfg.JWTTTL, cfg.StartingCash)
	handler := api.NewHandler(ex, authService, hub, logger, cfg.JWTTTL)

	var root http.Handler = api.NewRouter(handler)
	if len(cfg.CORSOrigins) > 0 {
		root = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		})(root)
	} else {
		// go-chi/cors treats an empty origin list as "allow all".
		logger.Info("CORS_ORIGINS not set, cross-origin requests disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (db.Store, error) {
	if cfg.DBDSN == "" {
		logger.Warn("DB_DSN not set, using in-memory store")
		return db.NewMemoryDB(), nil
	}
	database, err := db.NewDB(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close(ctx)
		return nil, err
	}
	return database, nil
}
