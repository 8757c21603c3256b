package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
)

// MemoryDB is an in-process Store. It backs local runs without PostgreSQL
// and the service tests. One mutex serialises every write, which gives
// ExecuteTrade the same all-or-nothing behaviour as the SQL transaction.
type MemoryDB struct {
	mu         sync.RWMutex
	users      []models.User // index = id-1
	byUsername map[string]int
	history    []models.Transaction
}

var _ Store = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{byUsername: make(map[string]int)}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

func (m *MemoryDB) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[username]; ok {
		return nil, ErrUsernameTaken
	}
	u := models.User{
		ID:           len(m.users) + 1,
		Username:     username,
		PasswordHash: passwordHash,
		Cash:         cash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users = append(m.users, u)
	m.byUsername[username] = u.ID
	return &u, nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id int) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || id > len(m.users) {
		return nil, ErrUserNotFound
	}
	u := m.users[id-1]
	return &u, nil
}

func (m *MemoryDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	id, ok := m.byUsername[username]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.GetUser(ctx, id)
}

func (m *MemoryDB) UsernameExists(ctx context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byUsername[username]
	return ok, nil
}

func (m *MemoryDB) GetHoldings(ctx context.Context, userID int) ([]models.Holding, error) {
	m.mu.RLock()
	sums := make(map[string]int64)
	for _, t := range m.history {
		if t.UserID == userID {
			sums[t.Symbol] += t.Shares
		}
	}
	m.mu.RUnlock()

	var holdings []models.Holding
	for symbol, shares := range sums {
		if shares != 0 {
			holdings = append(holdings, models.Holding{Symbol: symbol, Shares: shares})
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (m *MemoryDB) GetHolding(ctx context.Context, userID int, symbol string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holding(userID, symbol), nil
}

func (m *MemoryDB) holding(userID int, symbol string) int64 {
	var shares int64
	for _, t := range m.history {
		if t.UserID == userID && t.Symbol == symbol {
			shares += t.Shares
		}
	}
	return shares
}

func (m *MemoryDB) GetTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var txs []models.Transaction
	for _, t := range m.history {
		if t.UserID == userID {
			txs = append(txs, t)
		}
	}
	return txs, nil
}

func (m *MemoryDB) ExecuteTrade(ctx context.Context, trade models.Transaction, check TradeCheck) (*models.Transaction, decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if trade.UserID < 1 || trade.UserID > len(m.users) {
		return nil, decimal.Zero, ErrUserNotFound
	}
	user := &m.users[trade.UserID-1]
	if check != nil {
		if err := check(user.Cash, m.holding(trade.UserID, trade.Symbol)); err != nil {
			return nil, decimal.Zero, err
		}
	}
	newCash := user.Cash.Sub(trade.Amount())
	if newCash.IsNegative() {
		return nil, decimal.Zero, ErrNegativeCash
	}

	rec := trade
	rec.ID = len(m.history) + 1
	m.history = append(m.history, rec)
	user.Cash = newCash
	return &rec, newCash, nil
}
