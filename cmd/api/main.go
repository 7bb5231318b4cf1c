package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"walletledger/internal/auth"
	"walletledger/internal/config"
	"walletledger/internal/httpapi"
	"walletledger/internal/money"
	"walletledger/internal/outbox"
	"walletledger/internal/ratelimit"
	"walletledger/internal/wallet"
	"walletledger/pkg/logger"
	"walletledger/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		panic(err)
	}

	// Start order (spec §5): ledger store, then event log, then relay,
	// then listener. Shutdown reverses this.
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		panic(err)
	}
	defer func() { _ = db.Close() }()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		panic(err)
	}
	defer func() { _ = rdb.Close() }()

	kafkaWriter := utils.OpenKafkaWriter(utils.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer func() { _ = kafkaWriter.Close() }()

	limits, err := buildLimits(cfg.Money)
	if err != nil {
		log.Error("money limits config invalid", "err", err)
		panic(err)
	}

	engine := wallet.NewEngine(db, limits, time.Now)
	limiter := ratelimit.New(rdb, map[ratelimit.Scope]int{
		ratelimit.ScopeWallet: cfg.RateLimit.WalletPerMinute,
		ratelimit.ScopeUser:   cfg.RateLimit.UserPerMinute,
		ratelimit.ScopeGlobal: cfg.RateLimit.GlobalPerMinute,
	})

	publisher := outbox.NewKafkaPublisher(kafkaWriter, cfg.Kafka.Topic)
	relay := outbox.NewRelay(db, publisher, log, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx)
	}()

	h := httpapi.Handlers{
		Auth:    authManager,
		Engine:  engine,
		Limiter: limiter,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireAccessToken(authManager), h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped unexpectedly", "err", err)
			panic(err)
		}
		log.Info("server stopped")
	}

	// Stop order: listener, then relay, then event log / ledger store
	// connections (closed via the deferred Close calls above).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	cancelRelay()
	select {
	case <-relayDone:
	case <-time.After(10 * time.Second):
		log.Error("outbox relay did not stop in time")
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func buildLimits(cfg config.MoneyConfig) (wallet.Limits, error) {
	limits := wallet.Limits{
		MaxTransactionAmount: map[wallet.Currency]money.Amount{},
		MaxWalletBalance:     map[wallet.Currency]money.Amount{},
	}
	for cur, s := range cfg.MaxTransactionAmount {
		amt, err := money.Parse(s)
		if err != nil {
			return wallet.Limits{}, err
		}
		limits.MaxTransactionAmount[wallet.Currency(cur)] = amt
	}
	for cur, s := range cfg.MaxWalletBalance {
		amt, err := money.Parse(s)
		if err != nil {
			return wallet.Limits{}, err
		}
		limits.MaxWalletBalance[wallet.Currency(cur)] = amt
	}
	return limits, nil
}
