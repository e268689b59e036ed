package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Holding is a user's current position in one symbol: quantity plus the
// quantity-weighted mean purchase price of all buys to date.
type Holding struct {
	UserID       string          `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCostBasis decimal.Decimal `json:"avg_cost_basis"`
}

// NewHolding creates a position opened by a first buy.
func NewHolding(userID, symbol string, quantity, price decimal.Decimal) (Holding, error) {
	if userID == "" {
		return Holding{}, errors.New("user id is required")
	}
	if symbol == "" {
		return Holding{}, errors.New("symbol is required")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Holding{}, errors.Errorf("quantity must be positive, got %s", quantity.String())
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Holding{}, errors.Errorf("price must be positive, got %s", price.String())
	}
	return Holding{UserID: userID, Symbol: symbol, Quantity: quantity, AvgCostBasis: price}, nil
}

// Bought returns the holding after buying quantity shares at price. The cost
// basis becomes the quantity-weighted mean of all buys. A flat position
// degenerates to AvgCostBasis == price.
func (h Holding) Bought(quantity, price decimal.Decimal) (Holding, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Holding{}, errors.Errorf("buy quantity must be positive, got %s", quantity.String())
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Holding{}, errors.Errorf("buy price must be positive, got %s", price.String())
	}

	total := h.Quantity.Add(quantity)
	existingNotional := h.Quantity.Mul(h.AvgCostBasis)
	addedNotional := quantity.Mul(price)
	h.AvgCostBasis = existingNotional.Add(addedNotional).Div(total)
	h.Quantity = total
	return h, nil
}

// Sold returns the holding after selling quantity shares. Selling never
// changes the cost basis, and selling the full position leaves a
// zero-quantity record with the last basis intact.
func (h Holding) Sold(quantity decimal.Decimal) (Holding, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Holding{}, errors.Errorf("sell quantity must be positive, got %s", quantity.String())
	}
	if h.Quantity.LessThan(quantity) {
		return Holding{}, errors.Wrapf(ErrInsufficientShares,
			"%s: held %s, requested %s", h.Symbol, h.Quantity.String(), quantity.String())
	}
	h.Quantity = h.Quantity.Sub(quantity)
	return h, nil
}
