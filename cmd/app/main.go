// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
	"vendor-billing/internal/infra/adapters/notify"
	payAdapters "vendor-billing/internal/infra/adapters/payment"
	"vendor-billing/internal/infra/api"
	"vendor-billing/internal/infra/db/migrations"
	pg "vendor-billing/internal/infra/db/postgres"
	"vendor-billing/internal/infra/i18n"
	"vendor-billing/internal/infra/logging"
	"vendor-billing/internal/infra/metrics"
	red "vendor-billing/internal/infra/redis"
	"vendor-billing/internal/infra/sched"
	"vendor-billing/internal/infra/security"
	"vendor-billing/internal/infra/worker"
	"vendor-billing/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("vendor-billing stopped")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Migrations ----
	db, err := migrations.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := migrations.Up(db, logger); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrations: %w", err)
	}
	_ = db.Close()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		if !cfg.Runtime.Dev {
			return errors.New("security.encryption_key is required")
		}
		logger.Warn().Msg("security.encryption_key not set; using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	// ---- Repositories ----
	subRepo := pg.NewSubscriptionRepo(pool)
	txnRepo := pg.NewPaymentTransactionRepo(pool)
	vendorRepo := pg.NewPostgresVendorRepo(pool, encSvc)
	noticeRepo := pg.NewNotificationLogRepo(pool)
	var packageRepo repository.PackageRepository = pg.NewPostgresPackageRepo(pool)
	packageRepo = pg.NewPackageRepoCacheDecorator(packageRepo, redisClient, cfg.Redis.TTL, logger)
	tm := pg.NewTxManager(pool)

	// ---- Gateways ----
	mpesa, cards, err := payAdapters.NewGateways(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Notifications ----
	catalog, err := i18n.LoadCatalog(i18n.LocalesFS)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	var notifier adapter.Notifier = notify.NewNoopNotifier(logger)
	if cfg.Mail.Enabled {
		m, err := notify.NewMailer(&cfg.Mail, catalog, logger)
		if err != nil {
			return fmt.Errorf("mailer: %w", err)
		}
		notifier = m
	}
	var alerter adapter.AdminAlerter = notify.NewNoopAlerter(logger)
	if cfg.Alerts.TelegramToken != "" {
		a, err := notify.NewTelegramAlerter(&cfg.Alerts, logger)
		if err != nil {
			return fmt.Errorf("telegram alerter: %w", err)
		}
		alerter = a
	}

	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn().Msg("auth.jwt_secret not set; using dev secret (INSECURE)")
	}

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(subRepo, txnRepo, packageRepo, vendorRepo, tm, mpesa, cards, nil, logger)
	packageUC := usecase.NewPackageUseCase(packageRepo, logger)
	statsUC := usecase.NewStatsUseCase(subRepo, txnRepo, noticeRepo, logger)
	paymentUC := usecase.NewPaymentUseCase(usecase.ReconcileConfig{
		QueryAfter: cfg.Lifecycle.ReconcileAfter,
		FailAfter:  cfg.Lifecycle.PendingFailAfter,
		BatchSize:  cfg.Lifecycle.ReconcileBatchSize,
	}, txnRepo, subRepo, tm, mpesa, nil, logger)
	lifecycleUC := usecase.NewLifecycleUseCase(usecase.LifecycleConfig{
		ReminderWindow:   cfg.Lifecycle.ReminderWindow,
		ReminderThrottle: cfg.Lifecycle.ReminderThrottle,
		RenewalWindow:    cfg.Lifecycle.RenewalWindow,
		AppBaseURL:       cfg.HTTP.AppBaseURL,
	}, subRepo, txnRepo, packageRepo, vendorRepo, noticeRepo, tm, mpesa, cards, notifier, nil, logger)

	// ---- Scheduler ----
	scheduler, err := sched.NewScheduler(sched.DefaultJobs(&cfg.Scheduler, lifecycleUC, paymentUC), sched.Deps{
		Locker:     locker,
		Alerter:    alerter,
		Stats:      statsUC,
		Catalog:    catalog,
		RunTimeout: cfg.Scheduler.RunTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer scheduler.Stop()

	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Subscriptions: subUC,
		Payments:      paymentUC,
		Packages:      packageUC,
		Stats:         statsUC,
		Sweeps:        scheduler,
		Pool:          workers,
		Limiter:       rateLimiter,
		Auth:          api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Metrics:       promhttp.Handler(),
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return redisClient.Ping(ctx)
		},
	}, api.Options{
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		AllowedOrigins:     cfg.HTTP.AllowedOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		CallbackToken:      cfg.Mpesa.CallbackToken,
		Dev:                cfg.Runtime.Dev,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Strs("jobs", scheduler.Jobs()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errc:
		cancel()
		return fmt.Errorf("http server: %w", err)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	return nil
}
