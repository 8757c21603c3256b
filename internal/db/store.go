package db

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrNegativeCash  = errors.New("cash balance would become negative")
)

// TradeCheck is called inside the trade transaction with the user's locked
// cash balance and current holding in the traded symbol. Returning an error
// aborts the trade with nothing written.
type TradeCheck func(cash decimal.Decimal, holding int64) error

// Store is the durable ledger: users with their cash, plus the append-only
// transaction history. Holdings are always derived from history.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error)
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// GetHoldings returns the user's non-zero holdings ordered by symbol.
	GetHoldings(ctx context.Context, userID int) ([]models.Holding, error)
	GetHolding(ctx context.Context, userID int, symbol string) (int64, error)
	// GetTransactions returns the user's history in execution order.
	GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error)

	// ExecuteTrade appends trade to history and moves trade.Amount() out of
	// the user's cash as a single unit, serialised per user. It returns the
	// stored record and the resulting cash balance.
	ExecuteTrade(ctx context.Context, trade models.Transaction, check TradeCheck) (*models.Transaction, decimal.Decimal, error)

	Close(ctx context.Context) error
}
