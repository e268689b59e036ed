package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
	"github.com/mockstreet/paperbroker/internal/storage/accounts"
	"github.com/mockstreet/paperbroker/internal/storage/holdings"
	"github.com/mockstreet/paperbroker/internal/storage/txlog"
)

// mockPricer serves fixed prices per symbol.
type mockPricer struct {
	prices map[string]decimal.Decimal
}

func (m *mockPricer) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	price, ok := m.prices[symbol]
	if !ok {
		return domain.Quote{}, errors.Wrap(domain.ErrQuoteUnavailable, symbol)
	}
	return domain.Quote{Symbol: symbol, DisplayName: symbol, Price: price}, nil
}

type fixture struct {
	engine   *Engine
	accounts *accounts.Store
	holdings *holdings.Store
	txlog    *txlog.Store
	pricer   *mockPricer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	accountStore, err := accounts.NewStore(dir, zap.NewNop())
	require.NoError(t, err)
	holdingStore, err := holdings.NewStore(dir, zap.NewNop())
	require.NoError(t, err)
	txStore, err := txlog.NewStore(dir + "/wal")
	require.NoError(t, err)
	t.Cleanup(func() { _ = txStore.Close() })

	pricer := &mockPricer{prices: map[string]decimal.Decimal{}}
	engine, err := NewEngine(pricer, accountStore, holdingStore, txStore, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		engine:   engine,
		accounts: accountStore,
		holdings: holdingStore,
		txlog:    txStore,
		pricer:   pricer,
	}
}

func (f *fixture) createAccount(t *testing.T, userID string, balance int64) {
	t.Helper()
	account, err := domain.NewAccount(userID, decimal.NewFromInt(balance))
	require.NoError(t, err)
	require.NoError(t, f.accounts.Create(account))
}

func TestEngine_BuyCreatesHoldingAndDebitsCash(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 100)
	f.pricer.prices["AAPL"] = decimal.NewFromInt(50)

	tx, err := f.engine.ExecuteTrade(context.Background(), "u1", "AAPL", domain.SideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Equal(t, domain.SideBuy, tx.Side)
	assert.True(t, tx.TotalAmount.Equal(decimal.NewFromInt(50)))

	account, err := f.accounts.Get("u1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(50)))

	holding, ok := f.holdings.Get("u1", "AAPL")
	require.True(t, ok)
	assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, holding.AvgCostBasis.Equal(decimal.NewFromInt(50)))

	history, err := f.txlog.ListByUser("u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tx.ID, history[0].ID)
}

func TestEngine_BuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 100)
	f.pricer.prices["AAPL"] = decimal.NewFromInt(50)

	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "AAPL", domain.SideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)

	// second buy at a higher price would drive the balance negative
	f.pricer.prices["AAPL"] = decimal.NewFromInt(70)
	_, err = f.engine.ExecuteTrade(context.Background(), "u1", "AAPL", domain.SideBuy, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	account, err := f.accounts.Get("u1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(50)))

	holding, ok := f.holdings.Get("u1", "AAPL")
	require.True(t, ok)
	assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(1)))

	history, err := f.txlog.ListByUser("u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEngine_BuyRecomputesWeightedAverage(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 1000)

	f.pricer.prices["MSFT"] = decimal.NewFromInt(100)
	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "MSFT", domain.SideBuy, decimal.NewFromInt(2))
	require.NoError(t, err)

	f.pricer.prices["MSFT"] = decimal.NewFromInt(120)
	_, err = f.engine.ExecuteTrade(context.Background(), "u1", "MSFT", domain.SideBuy, decimal.NewFromInt(3))
	require.NoError(t, err)

	holding, ok := f.holdings.Get("u1", "MSFT")
	require.True(t, ok)
	assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, holding.AvgCostBasis.Equal(decimal.NewFromInt(112)),
		"expected 112, got %s", holding.AvgCostBasis.String())
}

func TestEngine_SellFullPositionKeepsRecordAndCreditsCash(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 500)

	f.pricer.prices["TSLA"] = decimal.NewFromInt(100)
	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "TSLA", domain.SideBuy, decimal.NewFromInt(5))
	require.NoError(t, err)

	f.pricer.prices["TSLA"] = decimal.NewFromInt(110)
	tx, err := f.engine.ExecuteTrade(context.Background(), "u1", "TSLA", domain.SideSell, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, tx.TotalAmount.Equal(decimal.NewFromInt(550)))

	holding, ok := f.holdings.Get("u1", "TSLA")
	require.True(t, ok, "zero-quantity holding must remain a record")
	assert.True(t, holding.Quantity.IsZero())
	assert.True(t, holding.AvgCostBasis.Equal(decimal.NewFromInt(100)))

	account, err := f.accounts.Get("u1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(550))) // 500 - 500 + 550
}

func TestEngine_SellMoreThanHeldFails(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 500)

	f.pricer.prices["NVDA"] = decimal.NewFromInt(100)
	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "NVDA", domain.SideBuy, decimal.NewFromInt(5))
	require.NoError(t, err)

	_, err = f.engine.ExecuteTrade(context.Background(), "u1", "NVDA", domain.SideSell, decimal.RequireFromString("5.01"))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	holding, ok := f.holdings.Get("u1", "NVDA")
	require.True(t, ok)
	assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(5)))

	history, err := f.txlog.ListByUser("u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEngine_SellWithoutPositionFails(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 500)
	f.pricer.prices["AMZN"] = decimal.NewFromInt(100)

	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "AMZN", domain.SideSell, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestEngine_QuoteUnavailableAbortsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 100)

	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "DOGE", domain.SideBuy, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)

	account, err := f.accounts.Get("u1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(100)))

	history, err := f.txlog.ListByUser("u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_UnknownAccountFails(t *testing.T) {
	f := newFixture(t)
	f.pricer.prices["AAPL"] = decimal.NewFromInt(50)

	_, err := f.engine.ExecuteTrade(context.Background(), "ghost", "AAPL", domain.SideBuy, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestEngine_ConcurrentSellsOfSamePosition(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 500)

	f.pricer.prices["GOOGL"] = decimal.NewFromInt(100)
	_, err := f.engine.ExecuteTrade(context.Background(), "u1", "GOOGL", domain.SideBuy, decimal.NewFromInt(5))
	require.NoError(t, err)

	// two concurrent sells of the full position: exactly one may win
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.engine.ExecuteTrade(context.Background(), "u1", "GOOGL", domain.SideSell, decimal.NewFromInt(5))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientShares)
		}
	}
	assert.Equal(t, 1, succeeded)

	holding, ok := f.holdings.Get("u1", "GOOGL")
	require.True(t, ok)
	assert.True(t, holding.Quantity.IsZero())

	account, err := f.accounts.Get("u1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(500))) // 500 - 500 + 500
}

func TestEngine_ConcurrentBuysAcrossUsers(t *testing.T) {
	f := newFixture(t)
	f.createAccount(t, "u1", 1000)
	f.createAccount(t, "u2", 1000)
	f.pricer.prices["AAPL"] = decimal.NewFromInt(10)

	var wg sync.WaitGroup
	for _, userID := range []string{"u1", "u2"} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := f.engine.ExecuteTrade(context.Background(), userID, "AAPL", domain.SideBuy, decimal.NewFromInt(1))
				assert.NoError(t, err)
			}(userID)
		}
	}
	wg.Wait()

	for _, userID := range []string{"u1", "u2"} {
		account, err := f.accounts.Get(userID)
		require.NoError(t, err)
		assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(950)))

		holding, ok := f.holdings.Get(userID, "AAPL")
		require.True(t, ok)
		assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(5)))

		history, err := f.txlog.ListByUser(userID)
		require.NoError(t, err)
		assert.Len(t, history, 5)
	}
}
