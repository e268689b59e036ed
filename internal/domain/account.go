package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Account holds a user's cash balance. The balance is mutated only by the
// trade engine and is never allowed to go negative.
type Account struct {
	UserID      string          `json:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// NewAccount creates an account with the given opening balance.
func NewAccount(userID string, openingBalance decimal.Decimal) (Account, error) {
	if userID == "" {
		return Account{}, errors.New("user id is required")
	}
	if openingBalance.IsNegative() {
		return Account{}, errors.Errorf("opening balance must not be negative, got %s", openingBalance.String())
	}
	return Account{UserID: userID, CashBalance: openingBalance}, nil
}

// Adjusted returns a copy of the account with delta applied to the cash
// balance. A delta that would drive the balance negative fails with
// ErrInsufficientFunds.
func (a Account) Adjusted(delta decimal.Decimal) (Account, error) {
	next := a.CashBalance.Add(delta)
	if next.IsNegative() {
		return Account{}, errors.Wrapf(ErrInsufficientFunds,
			"balance %s, requested %s", a.CashBalance.String(), delta.Neg().String())
	}
	a.CashBalance = next
	return a, nil
}
