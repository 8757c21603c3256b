// Package view renders models for clients. Every currency amount is sent as
// a fixed 2dp string plus a USD display string.
package view

import (
	"time"

	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
)

type Transaction struct {
	ID           int       `json:"id"`
	Symbol       string    `json:"symbol"`
	Shares       int64     `json:"shares"`
	Price        string    `json:"price"`
	PriceDisplay string    `json:"price_display"`
	Buy          bool      `json:"buy"`
	ExecutedAt   time.Time `json:"executed_at"`
}

func NewTransaction(t models.Transaction) Transaction {
	return Transaction{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Shares:       t.Shares,
		Price:        money.Fixed(t.Price),
		PriceDisplay: money.Format(t.Price),
		Buy:          t.Buy,
		ExecutedAt:   t.ExecutedAt,
	}
}

func NewTransactions(txs []models.Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, NewTransaction(t))
	}
	return out
}

type Position struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Shares       int64  `json:"shares"`
	Price        string `json:"price"`
	PriceDisplay string `json:"price_display"`
	Total        string `json:"total"`
	TotalDisplay string `json:"total_display"`
}

type Portfolio struct {
	Positions    []Position `json:"positions"`
	Cash         string     `json:"cash"`
	CashDisplay  string     `json:"cash_display"`
	Total        string     `json:"total"`
	TotalDisplay string     `json:"total_display"`
}

func NewPortfolio(p *models.Portfolio) Portfolio {
	out := Portfolio{
		Positions:    make([]Position, 0, len(p.Positions)),
		Cash:         money.Fixed(p.Cash),
		CashDisplay:  money.Format(p.Cash),
		Total:        money.Fixed(p.Total),
		TotalDisplay: money.Format(p.Total),
	}
	for _, pos := range p.Positions {
		out.Positions = append(out.Positions, Position{
			Symbol:       pos.Symbol,
			Name:         pos.Name,
			Shares:       pos.Shares,
			Price:        money.Fixed(pos.Price),
			PriceDisplay: money.Format(pos.Price),
			Total:        money.Fixed(pos.Total),
			TotalDisplay: money.Format(pos.Total),
		})
	}
	return out
}

type Quote struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	PriceDisplay string `json:"price_display"`
}

func NewQuote(q models.Quote) Quote {
	return Quote{Symbol: q.Symbol, Name: q.Name, Price: money.Fixed(q.Price), PriceDisplay: money.Format(q.Price)}
}
