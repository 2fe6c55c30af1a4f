package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/cache"
	"github.com/oggyb/wetogether/internal/config"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/payment"
	"github.com/oggyb/wetogether/internal/server"
	"github.com/oggyb/wetogether/internal/service/chat"
	"github.com/oggyb/wetogether/internal/service/interest"
	"github.com/oggyb/wetogether/internal/service/match"
	"github.com/oggyb/wetogether/internal/service/profile"
	"github.com/oggyb/wetogether/internal/service/wallet"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	catalogue, err := config.LoadCatalogue(cfg)
	if err != nil {
		log.Error("failed to load task catalogue", "err", err)
		os.Exit(1)
	}

	var gate payment.Gate
	if cfg.Payment.Token != "" {
		gate = payment.NewCryptoPay(cfg)
	} else {
		log.Warn("CRYPTO_PAY_TOKEN is empty, using the in-memory payment gate")
		gate = payment.NewFakeGate()
	}

	appCtx := app.New(cfg, database, redisCache, log,
		app.WithCatalogue(catalogue),
		app.WithNotifier(notify.NewRedisNotifier(redisCache.Client)),
		app.WithGate(gate),
	)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	walletReg := wallet.NewRegistrar(appCtx)
	registrars := []server.Registrar{
		profile.NewRegistrar(appCtx),
		interest.NewRegistrar(appCtx),
		match.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		walletReg,
	}

	poller := wallet.NewPoller(walletReg.Service())
	poller.Start(ctx)
	defer poller.Stop()

	log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
	if err := server.StartGRPCServer(ctx, cfg, log, registrars...); err != nil {
		log.Error("gRPC server stopped", "err", err)
	}
}
