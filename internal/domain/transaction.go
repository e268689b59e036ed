package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of one executed trade. TotalAmount is
// always derived from quantity and price, never taken from a caller.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewTransaction builds a validated transaction record for an executed trade.
func NewTransaction(userID, symbol string, side Side, quantity, pricePerShare decimal.Decimal) (Transaction, error) {
	if userID == "" {
		return Transaction{}, errors.New("user id is required")
	}
	if symbol == "" {
		return Transaction{}, errors.New("symbol is required")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, errors.Errorf("quantity must be positive, got %s", quantity.String())
	}
	if pricePerShare.LessThanOrEqual(decimal.Zero) {
		return Transaction{}, errors.Errorf("price per share must be positive, got %s", pricePerShare.String())
	}

	return Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		PricePerShare: pricePerShare,
		TotalAmount:   quantity.Mul(pricePerShare),
		Timestamp:     time.Now().UTC(),
	}, nil
}
