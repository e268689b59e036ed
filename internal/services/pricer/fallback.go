package pricer

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
	"github.com/mockstreet/paperbroker/pkg/retrier"
)

// FallbackPricer wraps a live pricer and substitutes the static last-known
// price when the live lookup fails. Symbols outside the supported set fail
// with ErrQuoteUnavailable: there is nothing to fall back to.
type FallbackPricer struct {
	live    Pricer
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// NewFallbackPricer creates a fallback-aware pricer. A nil live pricer means
// every quote resolves from the fallback table (offline mode).
func NewFallbackPricer(live Pricer, logger *zap.Logger) *FallbackPricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackPricer{
		live:    live,
		retrier: retrier.New(),
		logger:  logger,
	}
}

// GetQuote resolves the quote for a supported symbol, degrading to the
// fallback table when the live provider fails for any reason.
func (p *FallbackPricer) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	fallback, ok := domain.FallbackQuote(symbol)
	if !ok {
		return domain.Quote{}, errors.Wrap(domain.ErrQuoteUnavailable, symbol)
	}

	if p.live == nil {
		return fallback, nil
	}

	quote, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) (domain.Quote, error) {
		return p.live.GetQuote(ctx, symbol)
	})
	if err != nil {
		p.logger.Warn("live quote failed, using fallback price",
			zap.String("symbol", symbol),
			zap.String("fallback_price", fallback.Price.String()),
			zap.Error(err))
		return fallback, nil
	}

	if quote.Price.IsZero() || quote.Price.IsNegative() {
		p.logger.Warn("live quote returned non-positive price, using fallback",
			zap.String("symbol", symbol))
		return fallback, nil
	}

	return quote, nil
}

// ListQuotes resolves quotes for every supported symbol. Failures degrade
// per-symbol: a symbol is omitted only when it cannot be resolved at all.
func (p *FallbackPricer) ListQuotes(ctx context.Context) []domain.Quote {
	symbols := domain.SupportedSymbols()
	quotes := make([]domain.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := p.GetQuote(ctx, symbol)
		if err != nil {
			p.logger.Warn("skipping symbol in quote listing",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes
}
