// Package broker implements trade execution: validation against current
// balances and holdings, followed by atomic application of the cash, position
// and transaction-log mutations.
package broker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

// QuoteProvider resolves a best-effort quote for a symbol.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// AccountLedger owns cash balances. Mutations carry the transaction-log
// index they originate from; an index already reflected in the ledger is a
// no-op so that log replay is idempotent.
type AccountLedger interface {
	Get(userID string) (domain.Account, error)
	Adjust(userID string, delta decimal.Decimal, walIndex uint64) (decimal.Decimal, error)
	AppliedIndex() uint64
}

// PositionBook owns per-symbol holdings, with the same index contract as
// AccountLedger.
type PositionBook interface {
	Get(userID, symbol string) (domain.Holding, bool)
	ApplyBuy(userID, symbol string, quantity, price decimal.Decimal, walIndex uint64) (domain.Holding, error)
	ApplySell(userID, symbol string, quantity decimal.Decimal, walIndex uint64) (domain.Holding, error)
	AppliedIndex() uint64
}

// TransactionLog records executed trades and reports the index assigned to
// each record.
type TransactionLog interface {
	Append(tx domain.Transaction) (uint64, error)
}

// Engine orchestrates a single trade across the ledger, the position book
// and the transaction log. Trades for the same user are serialized; trades
// for different users proceed in parallel.
type Engine struct {
	quotes QuoteProvider
	ledger AccountLedger
	book   PositionBook
	txlog  TransactionLog
	logger *zap.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewEngine creates a trade engine.
func NewEngine(quotes QuoteProvider, ledger AccountLedger, book PositionBook, txlog TransactionLog, logger *zap.Logger) (*Engine, error) {
	if quotes == nil {
		return nil, errors.New("quote provider is required")
	}
	if ledger == nil {
		return nil, errors.New("account ledger is required")
	}
	if book == nil {
		return nil, errors.New("position book is required")
	}
	if txlog == nil {
		return nil, errors.New("transaction log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		quotes:    quotes,
		ledger:    ledger,
		book:      book,
		txlog:     txlog,
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
	}, nil
}

// ExecuteTrade validates and applies one buy or sell. Validation failures
// leave cash, holdings and the transaction log untouched; once validation
// passes, all three mutations are applied under the user's lock with the
// transaction written to the log first.
func (e *Engine) ExecuteTrade(ctx context.Context, userID, symbol string, side domain.Side, quantity decimal.Decimal) (domain.Transaction, error) {
	if userID == "" {
		return domain.Transaction{}, errors.New("user id is required")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return domain.Transaction{}, errors.Errorf("trade quantity must be positive, got %s", quantity.String())
	}

	// quote resolution happens before the lock: it is a pure input and may
	// be slow, and a failure here must abort with zero side effects
	quote, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Transaction{}, err
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	switch side {
	case domain.SideBuy:
		return e.executeBuy(userID, quote, quantity)
	case domain.SideSell:
		return e.executeSell(userID, quote, quantity)
	default:
		return domain.Transaction{}, errors.Wrapf(domain.ErrUnknownSide, "%d", side)
	}
}

func (e *Engine) executeBuy(userID string, quote domain.Quote, quantity decimal.Decimal) (domain.Transaction, error) {
	account, err := e.ledger.Get(userID)
	if err != nil {
		return domain.Transaction{}, err
	}

	cost := quantity.Mul(quote.Price)
	if account.CashBalance.LessThan(cost) {
		return domain.Transaction{}, errors.Wrapf(domain.ErrInsufficientFunds,
			"balance %s, cost %s", account.CashBalance.String(), cost.String())
	}

	tx, err := domain.NewTransaction(userID, quote.Symbol, domain.SideBuy, quantity, quote.Price)
	if err != nil {
		return domain.Transaction{}, err
	}

	return e.commit(tx, cost.Neg())
}

func (e *Engine) executeSell(userID string, quote domain.Quote, quantity decimal.Decimal) (domain.Transaction, error) {
	if _, err := e.ledger.Get(userID); err != nil {
		return domain.Transaction{}, err
	}

	holding, ok := e.book.Get(userID, quote.Symbol)
	if !ok || holding.Quantity.LessThan(quantity) {
		held := decimal.Zero
		if ok {
			held = holding.Quantity
		}
		return domain.Transaction{}, errors.Wrapf(domain.ErrInsufficientShares,
			"%s: held %s, requested %s", quote.Symbol, held.String(), quantity.String())
	}

	tx, err := domain.NewTransaction(userID, quote.Symbol, domain.SideSell, quantity, quote.Price)
	if err != nil {
		return domain.Transaction{}, err
	}

	return e.commit(tx, tx.TotalAmount)
}

// commit durably records the transaction, then applies the cash and holding
// mutations. The log append comes first: a crash after it can be recovered
// by replaying the log, while a failed append aborts with nothing changed.
// Post-validation, the mutations cannot fail under the held user lock.
func (e *Engine) commit(tx domain.Transaction, cashDelta decimal.Decimal) (domain.Transaction, error) {
	index, err := e.txlog.Append(tx)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "append transaction")
	}

	newBalance, err := e.ledger.Adjust(tx.UserID, cashDelta, index)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "adjust balance")
	}

	var holding domain.Holding
	switch tx.Side {
	case domain.SideBuy:
		holding, err = e.book.ApplyBuy(tx.UserID, tx.Symbol, tx.Quantity, tx.PricePerShare, index)
	case domain.SideSell:
		holding, err = e.book.ApplySell(tx.UserID, tx.Symbol, tx.Quantity, index)
	}
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "apply holding mutation")
	}

	e.logger.Info("trade executed",
		zap.String("user", tx.UserID),
		zap.String("symbol", tx.Symbol),
		zap.String("side", tx.Side.String()),
		zap.String("quantity", tx.Quantity.String()),
		zap.String("price", tx.PricePerShare.String()),
		zap.String("total", tx.TotalAmount.String()),
		zap.String("balance", newBalance.String()),
		zap.String("position", holding.Quantity.String()))

	return tx, nil
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}
