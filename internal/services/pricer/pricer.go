package pricer

import (
	"context"

	"github.com/mockstreet/paperbroker/internal/domain"
)

// Pricer resolves a best-effort quote for a symbol.
type Pricer interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}
