package domain

import "github.com/shopspring/decimal"

// Quote is a best-effort price observation for a symbol. Prices may come
// from the live provider or from the static fallback table and must never
// be treated as guaranteed current.
type Quote struct {
	Symbol      string          `json:"symbol"`
	DisplayName string          `json:"display_name"`
	Price       decimal.Decimal `json:"price"`
}
