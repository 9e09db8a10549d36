package main

import (
	"context"
	"errors"

	"minter-core/internal/bootstrap"
	"minter-core/internal/handler"
	"minter-core/internal/server"
	"minter-core/internal/service"
	"minter-core/internal/signer"
	"minter-core/pkg/config"
	"minter-core/pkg/logger"
	"minter-core/pkg/monitor"

	"go.uber.org/zap"
)

func main() {
	config.Init()
	cfg := config.Global

	logger.Init(cfg.App.Env, cfg.App.LogFormat)
	defer logger.Sync()

	monitor.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := bootstrap.New(cfg)
	defer res.Close()

	if cfg.Eth.Mnemonic == "" {
		logger.Fatal("eth.mnemonic is not set (ETH_MNEMONIC)")
	}
	sgn, err := signer.FromMnemonic(cfg.Eth.Mnemonic, cfg.Eth.DerivationPath, cfg.Eth.ChainID)
	if err != nil {
		logger.Fatal("Failed to load minter key", zap.Error(err))
	}
	logger.Info("Minter key loaded", zap.String("address", sgn.Address().Hex()), zap.Uint64("chain_id", cfg.Eth.ChainID))

	events, err := res.EventStore(ctx)
	if err != nil {
		logger.Fatal("Failed to open event store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	logger.Info("Event store replayed", zap.Uint64("events", events.Seq()))

	chain, err := res.Chain(ctx)
	if err != nil {
		logger.Fatal("Failed to dial eth providers", zap.Error(err))
	}
	guard, err := res.Guard(ctx)
	if err != nil {
		logger.Fatal("Failed to build guard", zap.Error(err))
	}
	ldg, err := res.Ledger(ctx)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}

	if _, err := service.InitializeNonce(ctx, events, chain, sgn.Address(), cfg.Eth.InitialNonce); err != nil {
		logger.Fatal("Failed to initialize transaction nonce", zap.Error(err))
	}

	wcfg, err := service.ConfigFrom(cfg.Eth.ChainID, cfg.Pipeline)
	if err != nil {
		logger.Fatal("Invalid pipeline configuration", zap.Error(err))
	}
	withdrawals, err := service.NewWithdrawalService(
		wcfg,
		events, chain, sgn,
		service.WithGuard(guard),
	)
	if err != nil {
		logger.Fatal("Failed to build withdrawal service", zap.Error(err))
	}
	reimbursements := service.NewReimbursementService(events, ldg, guard, cfg.Pipeline.ReimburseBatch)

	scheduler := service.NewScheduler(withdrawals, reimbursements, cfg.Pipeline.RetrieveSchedule, cfg.Pipeline.ReimburseSchedule)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	intake := service.NewIntakeService(events)
	intake.OnAccepted(scheduler.TriggerRetrieve)
	if topic := cfg.Intake.Topic; topic != "" {
		consumer, err := res.Consumer(ctx)
		if err != nil {
			logger.Fatal("Failed to build intake consumer", zap.Error(err))
		}
		go func() {
			if err := intake.Run(ctx, consumer, topic); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Intake consumer stopped", zap.Error(err))
			}
		}()
	}

	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, server.NewHTTPRouter(handler.NewWithdrawalHandler(withdrawals, intake)))
	app.OnShutdown(func(context.Context) {
		cancel()
		scheduler.Stop()
	})

	if err := app.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}
