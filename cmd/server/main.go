package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/booking"
	"github.com/example/van-transfers/internal/config"
	"github.com/example/van-transfers/internal/dedupe"
	"github.com/example/van-transfers/internal/dispatch"
	httpapi "github.com/example/van-transfers/internal/http"
	"github.com/example/van-transfers/internal/ingest"
	"github.com/example/van-transfers/internal/logging"
	"github.com/example/van-transfers/internal/payments"
	"github.com/example/van-transfers/internal/scheduler"
	"github.com/example/van-transfers/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	log := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	if err != nil {
		log.Errorw("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Errorw("storage init failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// env-driven wiring with in-memory fallbacks for local runs
	var guard dedupe.Guard
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rc.Close() }()
		guard = dedupe.NewRedisGuard(rc, cfg.DedupePrefix)
		log.Infow("dedupe guard on redis", "addr", cfg.RedisAddr)
	} else {
		guard = dedupe.NewMemoryGuard()
	}

	wsreg := dispatch.NewWSRegistry()
	notifier := &dispatch.Notifier{Store: store, Realtime: wsreg, Log: log}
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewPushProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		notifier.Queue = producer
		log.Infow("push messages queued on kafka", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		notifier.Push = pushSender(cfg.PushProvider, cfg.PushEndpoint, cfg.PushToken)
	}

	processor := payments.NewStripeClient(cfg.StripeKey, cfg.StripeWebhookSecret, cfg.Currency)
	svc := booking.NewService(store, processor, guard, notifier, log, booking.Options{
		FeePercent:        cfg.FeePercent,
		ReservationTTL:    cfg.ReservationTTL,
		ConnectRefreshURL: cfg.ConnectRefreshURL,
		ConnectReturnURL:  cfg.ConnectReturnURL,
		ReserveRatePerMin: cfg.ReserveRatePerMin,
		ReserveBurst:      cfg.ReserveBurst,
	})

	sched, err := scheduler.New(svc, log)
	if err != nil {
		log.Errorw("scheduler init failed", "error", err)
		os.Exit(1)
	}
	sched.Start()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(store, svc, wsreg, log, cfg.JWTSecret),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("van-transfers listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown incomplete", "error", err)
	}
}

func openStore(cfg config.ServerConfig, log *zap.SugaredLogger) (storage.Store, func(), error) {
	if cfg.PGDSN == "" {
		log.Warnw("PG_DSN not set, using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}
	if cfg.RunMigrations {
		applied, err := storage.Migrate(cfg.PGDSN, cfg.MigrationsDir)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("migrations checked", "dir", cfg.MigrationsDir, "applied", applied)
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	return ps, func() { _ = ps.Close() }, nil
}

func pushSender(provider, endpoint, token string) dispatch.PushSender {
	if provider == "fcm" {
		return dispatch.NewFCMDispatcher(endpoint, token)
	}
	return dispatch.NewPushDispatcher(endpoint, token)
}
