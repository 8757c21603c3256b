package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/portfolio"
	"github.com/xtrntr/papertrade/internal/quote"
	"go.uber.org/zap"
)

// Input errors
var (
	ErrMissingSymbol     = errors.New("missing symbol")
	ErrMissingShares     = errors.New("missing share count")
	ErrMissingInput      = errors.New("missing symbol or share count")
	ErrInvalidShareCount = errors.New("share count must be a positive integer")
)

// Domain errors
var (
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// DefaultAllowFullSpend keeps the historical rule that a buy must leave a
// strictly positive cash balance.
const DefaultAllowFullSpend = false

// Policy holds the tunable order rules.
type Policy struct {
	// AllowFullSpend lets a buy spend the entire balance (cash - cost >= 0).
	// When false the remainder must be strictly positive.
	AllowFullSpend bool
}

func (p Policy) canAfford(cash, cost decimal.Decimal) bool {
	rest := cash.Sub(cost)
	if p.AllowFullSpend {
		return !rest.IsNegative()
	}
	return rest.IsPositive()
}

// Notifier is told about every committed transaction.
type Notifier interface {
	TransactionExecuted(tx models.Transaction, cash decimal.Decimal)
}

// Exchange validates and executes market orders against live quotes
type Exchange struct {
	DB        db.Store
	Quotes    quote.Provider
	Portfolio *portfolio.Calculator
	Policy    Policy
	Notifier  Notifier

	logger *zap.Logger
	now    func() time.Time
}

// NewExchange creates a new exchange
func NewExchange(store db.Store, quotes quote.Provider, policy Policy, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		DB:        store,
		Quotes:    quotes,
		Portfolio: portfolio.NewCalculator(store, quotes),
		Policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Quote resolves a symbol for display.
func (e *Exchange) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = quote.Normalize(symbol)
	if symbol == "" {
		return models.Quote{}, ErrMissingSymbol
	}
	return e.lookup(ctx, symbol)
}

// Buy purchases shares at the current quoted price. shares is the raw
// requested count as submitted by the user.
func (e *Exchange) Buy(ctx context.Context, userID int, symbol, shares string) (*models.Transaction, error) {
	symbol = quote.Normalize(symbol)
	if symbol == "" {
		return nil, ErrMissingSymbol
	}
	q, err := e.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(shares), 10, 64)
	if err != nil {
		return nil, ErrMissingShares
	}
	if n <= 0 {
		return nil, ErrInvalidShareCount
	}

	cost := q.Price.Mul(decimal.NewFromInt(n))
	trade := models.Transaction{
		UserID:     userID,
		Symbol:     q.Symbol,
		Shares:     n,
		Price:      q.Price,
		Buy:        true,
		ExecutedAt: e.now(),
	}
	return e.execute(ctx, trade, func(cash decimal.Decimal, _ int64) error {
		if !e.Policy.canAfford(cash, cost) {
			return ErrInsufficientFunds
		}
		return nil
	})
}

// Sell disposes of shares at the current quoted price.
func (e *Exchange) Sell(ctx context.Context, userID int, symbol, shares string) (*models.Transaction, error) {
	symbol = quote.Normalize(symbol)
	shares = strings.TrimSpace(shares)
	if symbol == "" || shares == "" {
		return nil, ErrMissingInput
	}
	q, err := e.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(shares, 10, 64)
	if err != nil || n <= 0 {
		return nil, ErrInvalidShareCount
	}

	held, err := e.Portfolio.Holding(ctx, userID, q.Symbol)
	if err != nil {
		return nil, err
	}
	if n > held {
		return nil, ErrInsufficientShares
	}

	trade := models.Transaction{
		UserID:     userID,
		Symbol:     q.Symbol,
		Shares:     -n,
		Price:      q.Price,
		Buy:        false,
		ExecutedAt: e.now(),
	}
	// The holding is checked again under the store lock: a concurrent sell may
	// have landed since the read above.
	return e.execute(ctx, trade, func(_ decimal.Decimal, holding int64) error {
		if n > holding {
			return ErrInsufficientShares
		}
		return nil
	})
}

// History returns the user's transactions in execution order.
func (e *Exchange) History(ctx context.Context, userID int) ([]models.Transaction, error) {
	return e.DB.GetTransactions(ctx, userID)
}

func (e *Exchange) execute(ctx context.Context, trade models.Transaction, check db.TradeCheck) (*models.Transaction, error) {
	rec, cash, err := e.DB.ExecuteTrade(ctx, trade, check)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrInsufficientShares) {
			e.logger.Debug("order rejected",
				zap.Int("user_id", trade.UserID),
				zap.String("symbol", trade.Symbol),
				zap.Int64("shares", trade.Shares),
				zap.Error(err))
			return nil, err
		}
		if errors.Is(err, db.ErrNegativeCash) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to execute order: %w", err)
	}

	e.logger.Info("order executed",
		zap.Int("user_id", rec.UserID),
		zap.Int("tx_id", rec.ID),
		zap.String("symbol", rec.Symbol),
		zap.Int64("shares", rec.Shares),
		zap.String("price", rec.Price.String()),
		zap.String("cash", cash.String()))
	if e.Notifier != nil {
		e.Notifier.TransactionExecuted(*rec, cash)
	}
	return rec, nil
}

func (e *Exchange) lookup(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := e.Quotes.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, quote.ErrNotFound) {
			return models.Quote{}, ErrUnknownSymbol
		}
		return models.Quote{}, fmt.Errorf("%w: %s: %v", quote.ErrUnavailable, symbol, err)
	}
	return q, nil
}
