package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/logging"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/quote"
	"go.uber.org/zap"
)

type order struct {
	symbol string
	shares string
	buy    bool
}

// Seed the database with demo traders and a few trades at fixed prices
func main() {
	envFile := flag.String("env", "", "path to a .env file")
	password := flag.String("password", "password", "password for the demo users")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DBDSN == "" {
		log.Fatalf("DB_DSN is required for seeding")
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(ctx)
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate", zap.Error(err))
	}

	quotes := quote.NewStatic(
		models.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.RequireFromString("189.84")},
		models.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.RequireFromString("415.50")},
		models.Quote{Symbol: "NFLX", Name: "Netflix, Inc.", Price: decimal.RequireFromString("628.41")},
	)
	authService := auth.NewAuthService(database, []byte(cfg.JWTSecret), cfg.JWTTTL, cfg.StartingCash)
	ex := exchange.NewExchange(database, quotes, exchange.Policy{AllowFullSpend: cfg.AllowFullSpend}, logger)

	traders := map[string][]order{
		"trader1": {
			{"AAPL", "10", true},
			{"MSFT", "5", true},
			{"AAPL", "4", false},
		},
		"trader2": {
			{"NFLX", "3", true},
			{"MSFT", "2", true},
		},
	}

	for username, orders := range traders {
		userID, err := authService.Register(ctx, username, *password, *password)
		if errors.Is(err, auth.ErrUsernameTaken) {
			fmt.Printf("User %s already exists. Skipping.\n", username)
			continue
		}
		if err != nil {
			logger.Fatal("failed to create user", zap.String("username", username), zap.Error(err))
		}

		for _, o := range orders {
			var tx *models.Transaction
			if o.buy {
				tx, err = ex.Buy(ctx, userID, o.symbol, o.shares)
			} else {
				tx, err = ex.Sell(ctx, userID, o.symbol, o.shares)
			}
			if err != nil {
				logger.Fatal("failed to seed order",
					zap.String("username", username),
					zap.String("symbol", o.symbol),
					zap.Error(err))
			}
			fmt.Printf("%s: %+d %s @ %s\n", username, tx.Shares, tx.Symbol, tx.Price.StringFixed(2))
		}
	}

	fmt.Println("Successfully seeded the database with demo traders!")
}
