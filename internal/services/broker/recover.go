package broker

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

// ReplaySource iterates logged transactions in log order.
type ReplaySource interface {
	Replay(fromIndex uint64, fn func(index uint64, tx domain.Transaction) error) error
}

// Recover rolls the cash ledger and position book forward to match the
// transaction log. Snapshot writes are best-effort at trade time, so after a
// crash the snapshots may trail the log; replaying the missing suffix before
// the engine accepts trades restores the cash/holdings/history consistency
// invariant. Each store skips records at or below its own watermark, so
// recovery is idempotent and the two stores may trail by different amounts.
func Recover(source ReplaySource, ledger AccountLedger, book PositionBook, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	from := ledger.AppliedIndex()
	if idx := book.AppliedIndex(); idx < from {
		from = idx
	}

	return source.Replay(from+1, func(index uint64, tx domain.Transaction) error {
		cashDelta := tx.TotalAmount.Neg()
		if tx.Side == domain.SideSell {
			cashDelta = tx.TotalAmount
		}

		if _, err := ledger.Adjust(tx.UserID, cashDelta, index); err != nil {
			// the account record itself is not logged; a trade for a lost
			// account cannot be replayed
			if errors.Is(err, domain.ErrAccountNotFound) {
				logger.Warn("skipping logged trade for unknown account",
					zap.String("user", tx.UserID),
					zap.Uint64("index", index))
				return nil
			}
			return errors.Wrapf(err, "replay cash for transaction %s", tx.ID)
		}

		var err error
		switch tx.Side {
		case domain.SideBuy:
			_, err = book.ApplyBuy(tx.UserID, tx.Symbol, tx.Quantity, tx.PricePerShare, index)
		case domain.SideSell:
			_, err = book.ApplySell(tx.UserID, tx.Symbol, tx.Quantity, index)
		}
		if err != nil {
			return errors.Wrapf(err, "replay position for transaction %s", tx.ID)
		}

		logger.Info("replayed logged trade",
			zap.String("user", tx.UserID),
			zap.String("symbol", tx.Symbol),
			zap.String("side", tx.Side.String()),
			zap.Uint64("index", index))
		return nil
	})
}
