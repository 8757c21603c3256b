// Package portfolio values a user's holdings at live prices.
package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/quote"
)

// ErrQuoteUnavailable means a held symbol could not be priced. The whole
// portfolio fails rather than showing a partial equity total.
var ErrQuoteUnavailable = quote.ErrUnavailable

type Calculator struct {
	DB     db.Store
	Quotes quote.Provider
}

func NewCalculator(store db.Store, quotes quote.Provider) *Calculator {
	return &Calculator{DB: store, Quotes: quotes}
}

// GetPortfolio aggregates the user's history into positions valued at the
// current quote.
func (c *Calculator) GetPortfolio(ctx context.Context, userID int) (*models.Portfolio, error) {
	user, err := c.DB.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := c.DB.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &models.Portfolio{Positions: make([]models.Position, 0, len(holdings)), Cash: user.Cash}
	total := user.Cash
	for _, h := range holdings {
		q, err := c.Quotes.Lookup(ctx, h.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, h.Symbol, err)
		}
		value := money.Round(q.Price.Mul(decimal.NewFromInt(h.Shares)))
		p.Positions = append(p.Positions, models.Position{
			Symbol: h.Symbol,
			Name:   q.Name,
			Shares: h.Shares,
			Price:  q.Price,
			Total:  value,
		})
		total = total.Add(value)
	}
	p.Total = money.Round(total)
	return p, nil
}

// Holding is the user's net share count in symbol.
func (c *Calculator) Holding(ctx context.Context, userID int, symbol string) (int64, error) {
	return c.DB.GetHolding(ctx, userID, quote.Normalize(symbol))
}

// SellableSymbols lists the symbols the user currently holds.
func (c *Calculator) SellableSymbols(ctx context.Context, userID int) ([]string, error) {
	holdings, err := c.DB.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.Shares > 0 {
			symbols = append(symbols, h.Symbol)
		}
	}
	return symbols, nil
}
