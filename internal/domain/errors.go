package domain

import "errors"

// Sentinel errors returned by stores and services. Callers match them
// with errors.Is after unwrapping.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWrongPassword      = errors.New("wrong password")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrUnknownSide        = errors.New("unknown trade side")
)
