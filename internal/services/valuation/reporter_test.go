package valuation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

type mockQuotes struct {
	prices map[string]decimal.Decimal
}

func (m *mockQuotes) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	price, ok := m.prices[symbol]
	if !ok {
		return domain.Quote{}, errors.Wrap(domain.ErrQuoteUnavailable, symbol)
	}
	return domain.Quote{Symbol: symbol, DisplayName: symbol, Price: price}, nil
}

type mockBook struct {
	holdings []domain.Holding
}

func (m *mockBook) ListByUser(userID string) []domain.Holding {
	return m.holdings
}

type mockLedger struct {
	account domain.Account
	err     error
}

func (m *mockLedger) Get(userID string) (domain.Account, error) {
	return m.account, m.err
}

func TestReporter_ProfitAndLoss(t *testing.T) {
	// bought 10 at 100, now worth 150: profit 500, +50%
	quotes := &mockQuotes{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)}}
	book := &mockBook{holdings: []domain.Holding{{
		UserID:       "u1",
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		AvgCostBasis: decimal.NewFromInt(100),
	}}}
	ledger := &mockLedger{account: domain.Account{UserID: "u1", CashBalance: decimal.NewFromInt(25)}}

	report, err := NewReporter(quotes, book, ledger, zap.NewNop()).Portfolio(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, report.Positions, 1)
	pos := report.Positions[0]
	assert.True(t, pos.CurrentValue.Equal(decimal.NewFromInt(1500)))
	assert.True(t, pos.InvestedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pos.ProfitLoss.Equal(decimal.NewFromInt(500)))
	assert.True(t, pos.ProfitLossPercent.Equal(decimal.NewFromInt(50)))

	assert.True(t, report.CashBalance.Equal(decimal.NewFromInt(25)))
	assert.True(t, report.TotalValue.Equal(decimal.NewFromInt(1500)))
	assert.True(t, report.TotalInvested.Equal(decimal.NewFromInt(1000)))
	assert.True(t, report.TotalProfitLoss.Equal(decimal.NewFromInt(500)))
}

func TestReporter_SkipsZeroQuantityHoldings(t *testing.T) {
	quotes := &mockQuotes{prices: map[string]decimal.Decimal{"TSLA": decimal.NewFromInt(400)}}
	book := &mockBook{holdings: []domain.Holding{{
		UserID:       "u1",
		Symbol:       "TSLA",
		Quantity:     decimal.Zero,
		AvgCostBasis: decimal.NewFromInt(350),
	}}}
	ledger := &mockLedger{account: domain.Account{UserID: "u1", CashBalance: decimal.NewFromInt(100)}}

	report, err := NewReporter(quotes, book, ledger, zap.NewNop()).Portfolio(context.Background(), "u1")
	require.NoError(t, err)

	assert.Empty(t, report.Positions)
	assert.True(t, report.TotalValue.IsZero())
}

func TestReporter_OmitsUnresolvableSymbols(t *testing.T) {
	quotes := &mockQuotes{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)}}
	book := &mockBook{holdings: []domain.Holding{
		{UserID: "u1", Symbol: "AAPL", Quantity: decimal.NewFromInt(1), AvgCostBasis: decimal.NewFromInt(100)},
		{UserID: "u1", Symbol: "ZZZZ", Quantity: decimal.NewFromInt(2), AvgCostBasis: decimal.NewFromInt(10)},
	}}
	ledger := &mockLedger{account: domain.Account{UserID: "u1", CashBalance: decimal.Zero}}

	report, err := NewReporter(quotes, book, ledger, zap.NewNop()).Portfolio(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, report.Positions, 1)
	assert.Equal(t, "AAPL", report.Positions[0].Symbol)
}

func TestReporter_ZeroInvestedAmountDoesNotPanic(t *testing.T) {
	quotes := &mockQuotes{prices: map[string]decimal.Decimal{"META": decimal.NewFromInt(600)}}
	book := &mockBook{holdings: []domain.Holding{{
		UserID:       "u1",
		Symbol:       "META",
		Quantity:     decimal.NewFromInt(1),
		AvgCostBasis: decimal.Zero,
	}}}
	ledger := &mockLedger{account: domain.Account{UserID: "u1", CashBalance: decimal.Zero}}

	report, err := NewReporter(quotes, book, ledger, zap.NewNop()).Portfolio(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, report.Positions, 1)
	assert.True(t, report.Positions[0].ProfitLossPercent.IsZero())
}

func TestReporter_UnknownAccount(t *testing.T) {
	ledger := &mockLedger{err: domain.ErrAccountNotFound}
	reporter := NewReporter(&mockQuotes{}, &mockBook{}, ledger, zap.NewNop())

	_, err := reporter.Portfolio(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestReporter_ReadsAreIdempotent(t *testing.T) {
	quotes := &mockQuotes{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)}}
	book := &mockBook{holdings: []domain.Holding{{
		UserID:       "u1",
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(3),
		AvgCostBasis: decimal.NewFromInt(120),
	}}}
	ledger := &mockLedger{account: domain.Account{UserID: "u1", CashBalance: decimal.NewFromInt(10)}}
	reporter := NewReporter(quotes, book, ledger, zap.NewNop())

	first, err := reporter.Portfolio(context.Background(), "u1")
	require.NoError(t, err)
	second, err := reporter.Portfolio(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
