// Package quote looks up current stock prices.
package quote

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

var (
	// ErrNotFound is returned when the provider does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnavailable marks a lookup that failed for any other reason.
	ErrUnavailable = errors.New("quote unavailable")
)

// Provider resolves a symbol to its current quote.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (models.Quote, error)
}

// Normalize trims and upper-cases a ticker.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Static serves quotes from an in-memory table. Used for local runs and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
}

func NewStatic(quotes ...models.Quote) *Static {
	s := &Static{quotes: make(map[string]models.Quote)}
	for _, q := range quotes {
		s.Set(q.Symbol, q.Name, q.Price)
	}
	return s
}

// Set adds or reprices a symbol.
func (s *Static) Set(symbol, name string, price decimal.Decimal) {
	symbol = Normalize(symbol)
	s.mu.Lock()
	s.quotes[symbol] = models.Quote{Symbol: symbol, Name: name, Price: price}
	s.mu.Unlock()
}

// Remove delists a symbol.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	delete(s.quotes, Normalize(symbol))
	s.mu.Unlock()
}

func (s *Static) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}
	s.mu.RLock()
	q, ok := s.quotes[Normalize(symbol)]
	s.mu.RUnlock()
	if !ok {
		return models.Quote{}, ErrNotFound
	}
	return q, nil
}
