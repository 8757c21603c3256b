package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/quote"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, store db.Store, userID int, symbol string, shares int64, price string) {
	t.Helper()
	_, _, err := store.ExecuteTrade(context.Background(), models.Transaction{
		UserID: userID, Symbol: symbol, Shares: shares, Price: dec(price), Buy: shares > 0, ExecutedAt: time.Now(),
	}, nil)
	require.NoError(t, err)
}

type failingProvider struct{ quote.Provider }

func (f failingProvider) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	if symbol == "BBB" {
		return models.Quote{}, errors.New("connection refused")
	}
	return f.Provider.Lookup(ctx, symbol)
}

func TestCalculator_GetPortfolio(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	u, err := store.CreateUser(ctx, "alice", "hash", dec("10000.00"))
	require.NoError(t, err)

	seed(t, store, u.ID, "AAA", 10, "50.00")
	seed(t, store, u.ID, "AAA", -4, "60.00")
	seed(t, store, u.ID, "BBB", 3, "10.00")
	seed(t, store, u.ID, "CCC", 2, "5.00")
	seed(t, store, u.ID, "CCC", -2, "5.00")

	quotes := quote.NewStatic(
		models.Quote{Symbol: "AAA", Name: "AAA Corp", Price: dec("61.115")},
		models.Quote{Symbol: "BBB", Name: "BBB Inc", Price: dec("12.50")},
	)
	calc := NewCalculator(store, quotes)

	p, err := calc.GetPortfolio(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, p.Positions, 2, "zero holdings are dropped")

	aaa := p.Positions[0]
	assert.Equal(t, "AAA", aaa.Symbol)
	assert.Equal(t, "AAA Corp", aaa.Name)
	assert.Equal(t, int64(6), aaa.Shares)
	// 6 * 61.115 = 366.69 exactly
	assert.True(t, aaa.Total.Equal(dec("366.69")), "total %s", aaa.Total)

	bbb := p.Positions[1]
	assert.Equal(t, int64(3), bbb.Shares)
	assert.True(t, bbb.Total.Equal(dec("37.50")))

	// 10000 - 500 + 240 - 30 = 9710
	assert.True(t, p.Cash.Equal(dec("9710")), "cash %s", p.Cash)
	assert.True(t, p.Total.Equal(dec("10114.19")), "total %s", p.Total)
}

func TestCalculator_GetPortfolio_RoundsHalfUp(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	u, _ := store.CreateUser(ctx, "alice", "hash", dec("1000"))
	seed(t, store, u.ID, "AAA", 1, "1.00")

	calc := NewCalculator(store, quote.NewStatic(models.Quote{Symbol: "AAA", Price: dec("10.005")}))
	p, err := calc.GetPortfolio(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, p.Positions[0].Total.Equal(dec("10.01")), "total %s", p.Positions[0].Total)
}

func TestCalculator_GetPortfolio_QuoteUnavailable(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	u, _ := store.CreateUser(ctx, "alice", "hash", dec("1000"))
	seed(t, store, u.ID, "AAA", 1, "1.00")
	seed(t, store, u.ID, "BBB", 1, "1.00")

	quotes := quote.NewStatic(models.Quote{Symbol: "AAA", Price: dec("1")}, models.Quote{Symbol: "BBB", Price: dec("1")})
	calc := NewCalculator(store, failingProvider{quotes})

	_, err := calc.GetPortfolio(ctx, u.ID)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)

	// A delisted symbol is also a page-level failure.
	quotes.Remove("BBB")
	calc = NewCalculator(store, quotes)
	_, err = calc.GetPortfolio(ctx, u.ID)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestCalculator_EmptyPortfolio(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	u, _ := store.CreateUser(ctx, "alice", "hash", dec("10000"))

	p, err := NewCalculator(store, quote.NewStatic()).GetPortfolio(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
	assert.True(t, p.Total.Equal(dec("10000")))
}

func TestCalculator_UnknownUser(t *testing.T) {
	_, err := NewCalculator(db.NewMemoryDB(), quote.NewStatic()).GetPortfolio(context.Background(), 42)
	assert.ErrorIs(t, err, db.ErrUserNotFound)
}

func TestCalculator_HoldingAndSellable(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	u, _ := store.CreateUser(ctx, "alice", "hash", dec("10000"))
	seed(t, store, u.ID, "AAA", 10, "50")
	seed(t, store, u.ID, "AAA", -4, "60")
	seed(t, store, u.ID, "ZZZ", 1, "5")
	seed(t, store, u.ID, "ZZZ", -1, "5")

	calc := NewCalculator(store, quote.NewStatic())
	h, err := calc.Holding(ctx, u.ID, " aaa")
	require.NoError(t, err)
	assert.Equal(t, int64(6), h)

	symbols, err := calc.SellableSymbols(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, symbols)
}
