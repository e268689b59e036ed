// Package users stores registered users keyed by username and id.
package users

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
)

const snapshotFileName = "users.json"

// Store keeps user records in memory with JSON snapshot persistence.
type Store struct {
	mu         sync.RWMutex
	path       string
	byID       map[string]domain.User
	byUsername map[string]string
	logger     *zap.Logger
}

// NewStore creates a user store under dir, loading any existing snapshot.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create users dir")
	}

	s := &Store{
		path:       filepath.Join(dir, snapshotFileName),
		byID:       make(map[string]domain.User),
		byUsername: make(map[string]string),
		logger:     logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create registers a new user. Usernames are unique.
func (s *Store) Create(user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return errors.Wrap(domain.ErrUsernameTaken, user.Username)
	}
	s.byID[user.ID] = user
	s.byUsername[user.Username] = user.ID
	s.persist()
	return nil
}

// GetByUsername looks a user up by username.
func (s *Store) GetByUsername(username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return domain.User{}, errors.Wrap(domain.ErrUserNotFound, username)
	}
	return s.byID[id], nil
}

// GetByID looks a user up by id.
func (s *Store) GetByID(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return domain.User{}, errors.Wrap(domain.ErrUserNotFound, id)
	}
	return user, nil
}

func (s *Store) load() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "read users snapshot")
	}
	if len(payload) == 0 {
		return nil
	}

	var stored []domain.User
	if err := json.Unmarshal(payload, &stored); err != nil {
		return errors.Wrap(err, "decode users snapshot")
	}

	for _, user := range stored {
		s.byID[user.ID] = user
		s.byUsername[user.Username] = user.ID
	}
	return nil
}

// persist writes the snapshot atomically via temp file. Callers hold the
// write lock. Failures are logged, not propagated.
func (s *Store) persist() {
	stored := make([]domain.User, 0, len(s.byID))
	for _, user := range s.byID {
		stored = append(stored, user)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Username < stored[j].Username })

	payload, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode users snapshot", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		s.logger.Warn("failed to write users snapshot", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("failed to persist users snapshot", zap.Error(err))
	}
}
