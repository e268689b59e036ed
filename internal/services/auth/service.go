// Package auth handles registration and credential verification. It creates
// the trading account alongside the user; it does not manage sessions.
package auth

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mockstreet/paperbroker/internal/domain"
)

// UserStore persists user records.
type UserStore interface {
	Create(user domain.User) error
	GetByUsername(username string) (domain.User, error)
}

// AccountCreator opens trading accounts.
type AccountCreator interface {
	Create(account domain.Account) error
}

// Service registers users and verifies credentials.
type Service struct {
	users           UserStore
	accounts        AccountCreator
	startingBalance decimal.Decimal
	logger          *zap.Logger
}

// NewService creates an auth service. Every registered user gets an account
// with the configured starting balance.
func NewService(users UserStore, accounts AccountCreator, startingBalance decimal.Decimal, logger *zap.Logger) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if accounts == nil {
		return nil, errors.New("account creator is required")
	}
	if startingBalance.IsNegative() {
		return nil, errors.Errorf("starting balance must not be negative, got %s", startingBalance.String())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:           users,
		accounts:        accounts,
		startingBalance: startingBalance,
		logger:          logger,
	}, nil
}

// Register creates a user and their trading account.
func (s *Service) Register(username, password string) (domain.User, error) {
	if username == "" {
		return domain.User{}, errors.New("username is required")
	}
	if password == "" {
		return domain.User{}, errors.New("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, errors.Wrap(err, "hash password")
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.Create(user); err != nil {
		return domain.User{}, err
	}

	account, err := domain.NewAccount(user.ID, s.startingBalance)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.accounts.Create(account); err != nil {
		return domain.User{}, errors.Wrap(err, "create account")
	}

	s.logger.Info("user registered",
		zap.String("user", user.ID),
		zap.String("username", username),
		zap.String("starting_balance", s.startingBalance.String()))

	return user, nil
}

// Authenticate verifies a username/password pair and returns the user.
func (s *Service) Authenticate(username, password string) (domain.User, error) {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return domain.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return domain.User{}, errors.Wrap(domain.ErrWrongPassword, username)
	}

	return user, nil
}
