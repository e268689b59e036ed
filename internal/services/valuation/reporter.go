// Package valuation derives display values for a portfolio from current
// holdings and best-effort quotes. It is read-only and safe to call
// concurrently.
package valuation

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

// QuoteProvider resolves a best-effort quote for a symbol.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// PositionSource lists a user's current holdings.
type PositionSource interface {
	ListByUser(userID string) []domain.Holding
}

// BalanceSource reads a user's cash balance.
type BalanceSource interface {
	Get(userID string) (domain.Account, error)
}

// Position is one valued holding in a portfolio report.
type Position struct {
	Symbol            string          `json:"symbol"`
	DisplayName       string          `json:"display_name"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvgCostBasis      decimal.Decimal `json:"avg_cost_basis"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	InvestedAmount    decimal.Decimal `json:"invested_amount"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
}

// Report is a full portfolio view: valued positions plus aggregates.
type Report struct {
	CashBalance     decimal.Decimal `json:"cash_balance"`
	Positions       []Position      `json:"positions"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
}

// Reporter computes portfolio reports.
type Reporter struct {
	quotes QuoteProvider
	book   PositionSource
	ledger BalanceSource
	logger *zap.Logger
}

// NewReporter creates a valuation reporter.
func NewReporter(quotes QuoteProvider, book PositionSource, ledger BalanceSource, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{quotes: quotes, book: book, ledger: ledger, logger: logger}
}

// Portfolio values every open position of the user. Quote failures degrade
// per symbol: an unresolvable symbol is omitted rather than failing the
// whole report. Zero-quantity holdings contribute nothing and are skipped.
func (r *Reporter) Portfolio(ctx context.Context, userID string) (Report, error) {
	account, err := r.ledger.Get(userID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		CashBalance:     account.CashBalance,
		Positions:       []Position{},
		TotalValue:      decimal.Zero,
		TotalInvested:   decimal.Zero,
		TotalProfitLoss: decimal.Zero,
	}

	for _, holding := range r.book.ListByUser(userID) {
		if holding.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}

		quote, err := r.quotes.GetQuote(ctx, holding.Symbol)
		if err != nil {
			r.logger.Warn("omitting position from report, quote unresolvable",
				zap.String("user", userID),
				zap.String("symbol", holding.Symbol),
				zap.Error(err))
			continue
		}

		report.Positions = append(report.Positions, valuePosition(holding, quote))
	}

	for _, pos := range report.Positions {
		report.TotalValue = report.TotalValue.Add(pos.CurrentValue)
		report.TotalInvested = report.TotalInvested.Add(pos.InvestedAmount)
	}
	report.TotalProfitLoss = report.TotalValue.Sub(report.TotalInvested)

	return report, nil
}

func valuePosition(holding domain.Holding, quote domain.Quote) Position {
	currentValue := holding.Quantity.Mul(quote.Price)
	invested := holding.Quantity.Mul(holding.AvgCostBasis)
	profitLoss := currentValue.Sub(invested)

	// a quantity>0 holding always has a positive basis, but a zero invested
	// amount must not panic the percent computation
	percent := decimal.Zero
	if invested.IsPositive() {
		percent = profitLoss.Div(invested).Mul(decimal.NewFromInt(100))
	}

	return Position{
		Symbol:            holding.Symbol,
		DisplayName:       quote.DisplayName,
		Quantity:          holding.Quantity,
		AvgCostBasis:      holding.AvgCostBasis,
		CurrentPrice:      quote.Price,
		CurrentValue:      currentValue,
		InvestedAmount:    invested,
		ProfitLoss:        profitLoss,
		ProfitLossPercent: percent,
	}
}
