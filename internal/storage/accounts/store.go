// Package accounts is the sole owner of cash balances. Records live in
// memory and are snapshotted to a JSON file after every mutation.
package accounts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

const snapshotFileName = "accounts.json"

// Store keeps account records keyed by user id.
type Store struct {
	mu           sync.RWMutex
	path         string
	accounts     map[string]domain.Account
	appliedIndex uint64
	logger       *zap.Logger
}

// storedAccount is the serializable form. Balances are stored as strings to
// keep decimal precision stable across restarts.
type storedAccount struct {
	UserID      string `json:"user_id"`
	CashBalance string `json:"cash_balance"`
}

// snapshot carries the records plus the transaction-log index of the last
// adjustment they reflect, so startup recovery knows where replay begins.
type snapshot struct {
	AppliedIndex uint64          `json:"applied_index"`
	Accounts     []storedAccount `json:"accounts"`
}

// NewStore creates an account store under dir, loading any existing snapshot.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create accounts dir")
	}

	s := &Store{
		path:     filepath.Join(dir, snapshotFileName),
		accounts: make(map[string]domain.Account),
		logger:   logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the account for the given user.
func (s *Store) Get(userID string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, errors.Wrap(domain.ErrAccountNotFound, userID)
	}
	return account, nil
}

// Create registers a new account. Creating an account that already exists
// is an error.
func (s *Store) Create(account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return errors.Errorf("account %s already exists", account.UserID)
	}
	s.accounts[account.UserID] = account
	s.persist()
	return nil
}

// Adjust applies delta to the user's cash balance and returns the new
// balance. walIndex is the transaction-log index backing the adjustment: an
// index at or below the snapshot watermark is already reflected and the call
// is a no-op, which makes log replay idempotent. A zero index bypasses the
// watermark. The non-negative invariant is re-validated here regardless of
// any precondition check done by the caller.
func (s *Store) Adjust(userID string, delta decimal.Decimal, walIndex uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return decimal.Decimal{}, errors.Wrap(domain.ErrAccountNotFound, userID)
	}
	if walIndex != 0 && walIndex <= s.appliedIndex {
		return account.CashBalance, nil
	}

	adjusted, err := account.Adjusted(delta)
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.accounts[userID] = adjusted
	if walIndex > s.appliedIndex {
		s.appliedIndex = walIndex
	}
	s.persist()
	return adjusted.CashBalance, nil
}

// AppliedIndex returns the transaction-log index of the last adjustment
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
		return errors.Wrap(err, "read accounts snapshot")
	}
	if len(payload) == 0 {
		return nil
	}

	var stored snapshot
	if err := json.Unmarshal(payload, &stored); err != nil {
		return errors.Wrap(err, "decode accounts snapshot")
	}

	for _, rec := range stored.Accounts {
		balance, err := decimal.NewFromString(rec.CashBalance)
		if err != nil {
			return errors.Wrapf(err, "decode balance for %s", rec.UserID)
		}
		s.accounts[rec.UserID] = domain.Account{UserID: rec.UserID, CashBalance: balance}
	}
	s.appliedIndex = stored.AppliedIndex
	return nil
}

// persist writes the snapshot atomically via temp file. Callers hold the
// write lock. Failures are logged, not propagated: the in-memory state is
// already committed and the transaction log is the recovery source.
func (s *Store) persist() {
	stored := snapshot{AppliedIndex: s.appliedIndex, Accounts: make([]storedAccount, 0, len(s.accounts))}
	for _, account := range s.accounts {
		stored.Accounts = append(stored.Accounts, storedAccount{
			UserID:      account.UserID,
			CashBalance: account.CashBalance.String(),
		})
	}

	payload, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode accounts snapshot", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		s.logger.Warn("failed to write accounts snapshot", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("failed to persist accounts snapshot", zap.Error(err))
	}
}
