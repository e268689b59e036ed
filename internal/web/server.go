// Package web exposes the JSON API over HTTP. It performs no session
// handling: user ids on trade and read paths are trusted as already
// verified by the caller.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/internal/domain"
	"github.com/mockstreet/paperbroker/internal/services/valuation"
)

// TradeExecutor runs validated trades.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, userID, symbol string, side domain.Side, quantity decimal.Decimal) (domain.Transaction, error)
}

// PortfolioReporter values a user's portfolio.
type PortfolioReporter interface {
	Portfolio(ctx context.Context, userID string) (valuation.Report, error)
}

// QuoteLister resolves quotes for all supported symbols.
type QuoteLister interface {
	ListQuotes(ctx context.Context) []domain.Quote
}

// TransactionReader lists a user's trade history.
type TransactionReader interface {
	ListByUser(userID string) ([]domain.Transaction, error)
}

// Registrar registers users and verifies credentials.
type Registrar interface {
	Register(username, password string) (domain.User, error)
	Authenticate(username, password string) (domain.User, error)
}

// Server wires the services into HTTP endpoints.
type Server struct {
	addr      string
	engine    TradeExecutor
	reporter  PortfolioReporter
	quotes    QuoteLister
	history   TransactionReader
	registrar Registrar
	logger    *zap.Logger
}

// NewServer creates the API server.
func NewServer(addr string, engine TradeExecutor, reporter PortfolioReporter, quotes QuoteLister,
	history TransactionReader, registrar Registrar, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:      addr,
		engine:    engine,
		reporter:  reporter,
		quotes:    quotes,
		history:   history,
		registrar: registrar,
		logger:    logger,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Get("/quotes", s.handleQuotes)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/trades", s.handleTrade)
		})
	})

	return r
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.registrar.Register(req.Username, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, userResponse{UserID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.registrar.Authenticate(req.Username, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, userResponse{UserID: user.ID, Username: user.Username})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"quotes": s.quotes.ListQuotes(r.Context())})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	report, err := s.reporter.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.history.ListByUser(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

type tradeRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.LessThanOrEqual(decimal.Zero) {
		s.writeError(w, http.StatusBadRequest, "quantity must be a positive decimal")
		return
	}

	tx, err := s.engine.ExecuteTrade(r.Context(), chi.URLParam(r, "userID"), req.Symbol, side, quantity)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tx)
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUsernameTaken):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrWrongPassword):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientShares):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQuoteUnavailable):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrUnknownSide):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
