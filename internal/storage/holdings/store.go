// Package holdings owns per-user positions: one record per (user, symbol)
// pair. Records live in memory and are snapshotted to a JSON file after
// every mutation.
package holdings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

const snapshotFileName = "holdings.json"

// Store keeps holding records keyed by user id and symbol.
type Store struct {
	mu           sync.RWMutex
	path         string
	holdings     map[string]map[string]domain.Holding
	appliedIndex uint64
	logger       *zap.Logger
}

type storedHolding struct {
	UserID       string `json:"user_id"`
	Symbol       string `json:"symbol"`
	Quantity     string `json:"quantity"`
	AvgCostBasis string `json:"avg_cost_basis"`
}

// snapshot carries the records plus the transaction-log index of the last
// mutation they reflect, so startup recovery knows where replay begins.
type snapshot struct {
	AppliedIndex uint64          `json:"applied_index"`
	Holdings     []storedHolding `json:"holdings"`
}

// NewStore creates a holdings store under dir, loading any existing snapshot.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create holdings dir")
	}

	s := &Store{
		path:     filepath.Join(dir, snapshotFileName),
		holdings: make(map[string]map[string]domain.Holding),
		logger:   logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the holding for (userID, symbol). The second return value is
// false when the user never bought the symbol.
func (s *Store) Get(userID, symbol string) (domain.Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holding, ok := s.holdings[userID][symbol]
	return holding, ok
}

// ListByUser returns the user's holdings sorted by symbol. Zero-quantity
// records are included; valuation decides what to do with them.
func (s *Store) ListByUser(userID string) []domain.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySymbol := s.holdings[userID]
	out := make([]domain.Holding, 0, len(bySymbol))
	for _, holding := range bySymbol {
		out = append(out, holding)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ApplyBuy records a purchase, creating the holding on first buy and
// recomputing the weighted-average cost basis otherwise. walIndex is the
// transaction-log index backing the mutation: an index at or below the
// snapshot watermark is already reflected and the call is a no-op, which
// makes log replay idempotent. A zero index bypasses the watermark.
func (s *Store) ApplyBuy(userID, symbol string, quantity, price decimal.Decimal, walIndex uint64) (domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	holding, ok := s.holdings[userID][symbol]
	if walIndex != 0 && walIndex <= s.appliedIndex {
		return holding, nil
	}

	var (
		next domain.Holding
		err  error
	)
	if !ok {
		next, err = domain.NewHolding(userID, symbol, quantity, price)
	} else {
		next, err = holding.Bought(quantity, price)
	}
	if err != nil {
		return domain.Holding{}, err
	}

	if s.holdings[userID] == nil {
		s.holdings[userID] = make(map[string]domain.Holding)
	}
	s.holdings[userID][symbol] = next
	if walIndex > s.appliedIndex {
		s.appliedIndex = walIndex
	}
	s.persist()
	return next, nil
}

// ApplySell records a sale. The held-quantity invariant is re-validated here
// regardless of any precondition check done by the caller. Selling the full
// position keeps the record at quantity zero. walIndex follows the same
// watermark contract as ApplyBuy.
func (s *Store) ApplySell(userID, symbol string, quantity decimal.Decimal, walIndex uint64) (domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	holding, ok := s.holdings[userID][symbol]
	if walIndex != 0 && walIndex <= s.appliedIndex {
		return holding, nil
	}
	if !ok {
		return domain.Holding{}, errors.Wrapf(domain.ErrInsufficientShares, "%s: no position", symbol)
	}

	next, err := holding.Sold(quantity)
	if err != nil {
		return domain.Holding{}, err
	}

	s.holdings[userID][symbol] = next
	if walIndex > s.appliedIndex {
		s.appliedIndex = walIndex
	}
	s.persist()
	return next, nil
}

// AppliedIndex returns the transaction-log index of the last mutation
// reflected in this store.
func (s *Store) AppliedIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.appliedIndex
}

func (s *Store) load() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "read holdings snapshot")
	}
	if len(payload) == 0 {
		return nil
	}

	var stored snapshot
	if err := json.Unmarshal(payload, &stored); err != nil {
		return errors.Wrap(err, "decode holdings snapshot")
	}

	for _, rec := range stored.Holdings {
		quantity, err := decimal.NewFromString(rec.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decode quantity for %s/%s", rec.UserID, rec.Symbol)
		}
		basis, err := decimal.NewFromString(rec.AvgCostBasis)
		if err != nil {
			return errors.Wrapf(err, "decode cost basis for %s/%s", rec.UserID, rec.Symbol)
		}
		if s.holdings[rec.UserID] == nil {
			s.holdings[rec.UserID] = make(map[string]domain.Holding)
		}
		s.holdings[rec.UserID][rec.Symbol] = domain.Holding{
			UserID:       rec.UserID,
			Symbol:       rec.Symbol,
			Quantity:     quantity,
			AvgCostBasis: basis,
		}
	}
	s.appliedIndex = stored.AppliedIndex
	return nil
}

// persist writes the snapshot atomically via temp file. Callers hold the
// write lock. Failures are logged, not propagated.
func (s *Store) persist() {
	stored := snapshot{AppliedIndex: s.appliedIndex}
	for _, bySymbol := range s.holdings {
		for _, holding := range bySymbol {
			stored.Holdings = append(stored.Holdings, storedHolding{
				UserID:       holding.UserID,
				Symbol:       holding.Symbol,
				Quantity:     holding.Quantity.String(),
				AvgCostBasis: holding.AvgCostBasis.String(),
			})
		}
	}
	sort.Slice(stored.Holdings, func(i, j int) bool {
		if stored.Holdings[i].UserID != stored.Holdings[j].UserID {
			return stored.Holdings[i].UserID < stored.Holdings[j].UserID
		}
		return stored.Holdings[i].Symbol < stored.Holdings[j].Symbol
	})

	payload, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode holdings snapshot", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		s.logger.Warn("failed to write holdings snapshot", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("failed to persist holdings snapshot", zap.Error(err))
	}
}
