// Package domain defines the core data structures of the simulated broker.
package domain

import "github.com/shopspring/decimal"

// symbolInfo holds the static reference data for a supported symbol.
type symbolInfo struct {
	displayName   string
	fallbackPrice decimal.Decimal
}

// supportedSymbols is the closed set of tradable instruments. The fallback
// prices are last-known quotes used when the live lookup fails.
var supportedSymbols = map[string]symbolInfo{
	"AAPL":  {displayName: "Apple Inc.", fallbackPrice: decimal.RequireFromString("275.11")},
	"TSLA":  {displayName: "Tesla, Inc.", fallbackPrice: decimal.RequireFromString("429.52")},
	"NVDA":  {displayName: "NVIDIA Corporation", fallbackPrice: decimal.RequireFromString("188.15")},
	"META":  {displayName: "Meta Platforms, Inc.", fallbackPrice: decimal.RequireFromString("621.71")},
	"GOOGL": {displayName: "Alphabet Inc.", fallbackPrice: decimal.RequireFromString("278.83")},
	"AMZN":  {displayName: "Amazon.com, Inc.", fallbackPrice: decimal.RequireFromString("244.41")},
	"NFLX":  {displayName: "Netflix, Inc.", fallbackPrice: decimal.RequireFromString("1103.66")},
	"MSFT":  {displayName: "Microsoft Corporation", fallbackPrice: decimal.RequireFromString("496.82")},
}

// SupportedSymbols returns the tradable symbols in a stable order.
func SupportedSymbols() []string {
	return []string{"AAPL", "TSLA", "NVDA", "META", "GOOGL", "AMZN", "NFLX", "MSFT"}
}

// IsSupportedSymbol reports whether the symbol belongs to the closed set.
func IsSupportedSymbol(symbol string) bool {
	_, ok := supportedSymbols[symbol]
	return ok
}

// FallbackQuote returns the static last-known quote for a supported symbol.
// The second return value is false for symbols outside the closed set.
func FallbackQuote(symbol string) (Quote, bool) {
	info, ok := supportedSymbols[symbol]
	if !ok {
		return Quote{}, false
	}
	return Quote{Symbol: symbol, DisplayName: info.displayName, Price: info.fallbackPrice}, true
}
