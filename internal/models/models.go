package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered user
type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Cash         decimal.Decimal `json:"cash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Transaction is one executed buy or sell. Records are append-only.
type Transaction struct {
	ID         int             `json:"id"`
	UserID     int             `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Shares     int64           `json:"shares"` // positive for buys, negative for sells
	Price      decimal.Decimal `json:"price"`  // quoted price at execution
	Buy        bool            `json:"buy"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Amount is the signed cash value of the transaction: positive for buys.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares))
}

// Holding is the net number of shares a user owns in a symbol
type Holding struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// Quote is a point-in-time price for a symbol
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Position is a holding valued at the current quote
type Position struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Total  decimal.Decimal `json:"total"`
}

// Portfolio is a user's positions plus cash
type Portfolio struct {
	Positions []Position      `json:"positions"`
	Cash      decimal.Decimal `json:"cash"`
	Total     decimal.Decimal `json:"total"`
}
