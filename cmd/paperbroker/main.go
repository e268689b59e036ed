// Command paperbroker runs the simulated stock-trading broker: a JSON API
// over a cash ledger, a position book and an append-only transaction log.
//
// Usage:
//
//	paperbroker --config config.yaml
//	paperbroker --setup   (interactive configuration wizard)
//	paperbroker           (CLI flags with defaults)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/mockstreet/paperbroker/config"
	"github.com/mockstreet/paperbroker/internal/services/auth"
	"github.com/mockstreet/paperbroker/internal/services/broker"
	"github.com/mockstreet/paperbroker/internal/services/pricer"
	"github.com/mockstreet/paperbroker/internal/services/valuation"
	"github.com/mockstreet/paperbroker/internal/setup"
	"github.com/mockstreet/paperbroker/internal/storage/accounts"
	"github.com/mockstreet/paperbroker/internal/storage/holdings"
	"github.com/mockstreet/paperbroker/internal/storage/txlog"
	"github.com/mockstreet/paperbroker/internal/storage/users"
	"github.com/mockstreet/paperbroker/internal/web"
)

func main() {
	cfg, runSetup, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	accountStore, err := accounts.NewStore(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to open account store", zap.Error(err))
	}
	holdingStore, err := holdings.NewStore(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to open holding store", zap.Error(err))
	}
	userStore, err := users.NewStore(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to open user store", zap.Error(err))
	}
	txStore, err := txlog.NewStore(filepath.Join(cfg.DataDir, "wal"))
	if err != nil {
		logger.Fatal("failed to open transaction log", zap.Error(err))
	}
	defer txStore.Close()

	// snapshots may trail the log after a crash; roll them forward before
	// accepting trades
	if err := broker.Recover(txStore, accountStore, holdingStore, logger); err != nil {
		logger.Fatal("failed to recover state from transaction log", zap.Error(err))
	}

	var live pricer.Pricer
	if cfg.LiveQuotes {
		live = pricer.NewYahooPricer(cfg.QuoteCacheTTL)
	}
	quotes := pricer.NewFallbackPricer(live, logger)

	engine, err := broker.NewEngine(quotes, accountStore, holdingStore, txStore, logger)
	if err != nil {
		logger.Fatal("failed to create trade engine", zap.Error(err))
	}
	reporter := valuation.NewReporter(quotes, holdingStore, accountStore, logger)
	registrar, err := auth.NewService(userStore, accountStore, cfg.StartingBalance, logger)
	if err != nil {
		logger.Fatal("failed to create auth service", zap.Error(err))
	}

	server := web.NewServer(cfg.ListenAddr, engine, reporter, quotes, txStore, registrar, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}
