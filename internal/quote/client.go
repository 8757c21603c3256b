package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
	"go.uber.org/zap"
)

// Client queries an IEX-style HTTP quote API:
//
//	GET {base}/stock/{symbol}/quote?token={key}
//	{"symbol": "AAPL", "companyName": "Apple Inc.", "latestPrice": 189.84}
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type quotePayload struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

func (c *Client) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return models.Quote{}, ErrNotFound
	}
	addr := fmt.Sprintf("%s/stock/%s/quote?token=%s", c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to build quote request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("quote lookup",
		zap.String("symbol", symbol),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Quote{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return models.Quote{}, fmt.Errorf("quote service returned %s for %s", resp.Status, symbol)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to read quote for %s: %w", symbol, err)
	}
	var p quotePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.Quote{}, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	// Some providers answer 200 with an empty object for unknown tickers.
	if p.Symbol == "" || !p.LatestPrice.IsPositive() {
		return models.Quote{}, ErrNotFound
	}
	return models.Quote{Symbol: Normalize(p.Symbol), Name: p.CompanyName, Price: p.LatestPrice}, nil
}
