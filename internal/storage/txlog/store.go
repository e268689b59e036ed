// Package txlog persists executed trades in a write-ahead log. The log is
// append-only: records are never mutated or deleted, and every derived view
// is computed at read time.
package txlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/mockstreet/paperbroker/internal/domain"
)

const (
	// rotation caps disk usage, not history: at these settings the log keeps
	// the most recent 100M records before gowal drops the oldest segment
	segmentThreshold = 1000
	maxSegments      = 100000
	keyPrefix        = "tx_"
)

// Store is a WAL-backed append-only transaction log.
type Store struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// storedTransaction is the WAL payload form. Decimal fields are strings to
// keep precision stable across encode/decode cycles.
type storedTransaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      string    `json:"quantity"`
	PricePerShare string    `json:"price_per_share"`
	TotalAmount   string    `json:"total_amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewStore initializes a WAL-backed transaction log under the provided directory.
func NewStore(dir string) (*Store, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "txlog_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init transaction log WAL")
	}

	return &Store{wal: wal}, nil
}

// Append writes the transaction to the WAL and returns its log index. The
// record must come from domain.NewTransaction so identity and total amount
// are already derived.
func (s *Store) Append(tx domain.Transaction) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("transaction log is not initialized")
	}
	if tx.ID == "" || tx.UserID == "" {
		return 0, errors.New("transaction id and user id are required")
	}

	payload, err := json.Marshal(storedTransaction{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Symbol:        tx.Symbol,
		Side:          tx.Side.String(),
		Quantity:      tx.Quantity.String(),
		PricePerShare: tx.PricePerShare.String(),
		TotalAmount:   tx.TotalAmount.String(),
		Timestamp:     tx.Timestamp,
	})
	if err != nil {
		return 0, errors.Wrap(err, "marshal transaction")
	}

	key := fmt.Sprintf("%s%s_%s", keyPrefix, tx.UserID, tx.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return 0, errors.Wrap(err, "write transaction")
	}
	return nextIndex, nil
}

// ListByUser returns the user's transactions newest-first. Ties on timestamp
// keep reverse insertion order.
func (s *Store) ListByUser(userID string) ([]domain.Transaction, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("transaction log is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userPrefix := fmt.Sprintf("%s%s_", keyPrefix, userID)

	var out []domain.Transaction
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, userPrefix) {
			continue
		}

		tx, err := decodeTransaction(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}

	// reverse: WAL order is oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Replay invokes fn for every logged transaction with index >= fromIndex, in
// log order. Startup recovery uses it to roll the snapshot stores forward to
// match the log.
func (s *Store) Replay(fromIndex uint64, fn func(index uint64, tx domain.Transaction) error) error {
	if s == nil || s.wal == nil {
		return errors.New("transaction log is not initialized")
	}
	if fromIndex == 0 {
		fromIndex = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := fromIndex; idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}

		tx, err := decodeTransaction(payload)
		if err != nil {
			return err
		}
		if err := fn(idx, tx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func decodeTransaction(payload []byte) (domain.Transaction, error) {
	var stored storedTransaction
	if err := json.Unmarshal(payload, &stored); err != nil {
		return domain.Transaction{}, errors.Wrap(err, "decode transaction")
	}

	side, err := domain.ParseSide(stored.Side)
	if err != nil {
		return domain.Transaction{}, err
	}
	quantity, err := decimal.NewFromString(stored.Quantity)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "decode transaction quantity")
	}
	price, err := decimal.NewFromString(stored.PricePerShare)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "decode transaction price")
	}
	total, err := decimal.NewFromString(stored.TotalAmount)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "decode transaction total")
	}

	return domain.Transaction{
		ID:            stored.ID,
		UserID:        stored.UserID,
		Symbol:        stored.Symbol,
		Side:          side,
		Quantity:      quantity,
		PricePerShare: price,
		TotalAmount:   total,
		Timestamp:     stored.Timestamp,
	}, nil
}
