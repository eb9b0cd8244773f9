package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientPosition is returned when selling more than is held.
var ErrInsufficientPosition = errors.New("insufficient position")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
