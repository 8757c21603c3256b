package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

//go:embed migrations/001_init.sql
var schema string

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateUser inserts a new user with a starting cash balance
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, cash) VALUES ($1, $2, $3) RETURNING id, username, password_hash, cash, created_at",
		username, passwordHash, cash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, cash, created_at FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, cash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UsernameExists reports whether a user with that name is registered
func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// GetHoldings sums the user's history per symbol
func (db *DB) GetHoldings(ctx context.Context, userID int) ([]models.Holding, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT symbol, SUM(shares)::bigint
		FROM history
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(shares) <> 0
		ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Shares); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	return holdings, nil
}

// GetHolding returns the user's net shares in one symbol
func (db *DB) GetHolding(ctx context.Context, userID int, symbol string) (int64, error) {
	var shares int64
	err := db.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(shares), 0)::bigint FROM history WHERE user_id = $1 AND symbol = $2",
		userID, symbol).Scan(&shares)
	if err != nil {
		return 0, fmt.Errorf("failed to get holding: %w", err)
	}
	return shares, nil
}

// GetTransactions retrieves the user's transaction history
func (db *DB) GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, symbol, shares, price, buy, executed_at
		FROM history
		WHERE user_id = $1
		ORDER BY executed_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &t.Price, &t.Buy, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}

// ExecuteTrade records a trade and settles its cash in one transaction
func (db *DB) ExecuteTrade(ctx context.Context, trade models.Transaction, check TradeCheck) (*models.Transaction, decimal.Decimal, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user row so concurrent orders for the same user queue here
	var cash decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT cash FROM users WHERE id = $1 FOR UPDATE", trade.UserID).Scan(&cash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decimal.Zero, ErrUserNotFound
		}
		return nil, decimal.Zero, fmt.Errorf("failed to lock user: %w", err)
	}

	var holding int64
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(shares), 0)::bigint FROM history WHERE user_id = $1 AND symbol = $2",
		trade.UserID, trade.Symbol).Scan(&holding)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to get holding: %w", err)
	}

	if check != nil {
		if err := check(cash, holding); err != nil {
			return nil, decimal.Zero, err
		}
	}
	if cash.Sub(trade.Amount()).IsNegative() {
		return nil, decimal.Zero, ErrNegativeCash
	}

	rec := trade
	err = tx.QueryRow(ctx,
		"INSERT INTO history (user_id, symbol, shares, price, buy, executed_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, executed_at",
		trade.UserID, trade.Symbol, trade.Shares, trade.Price, trade.Buy, trade.ExecutedAt).Scan(&rec.ID, &rec.ExecutedAt)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to record transaction: %w", err)
	}

	var newCash decimal.Decimal
	err = tx.QueryRow(ctx,
		"UPDATE users SET cash = cash - $1 WHERE id = $2 RETURNING cash",
		trade.Amount(), trade.UserID).Scan(&newCash)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to update cash: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &rec, newCash, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
