package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade_backend/internal/cascade"
	"cascade_backend/internal/cascade/notify"
	"cascade_backend/internal/email"
	"cascade_backend/internal/events"
	apphttp "cascade_backend/internal/http"
	"cascade_backend/internal/http/router"
	"cascade_backend/internal/notification"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/internal/whatsapp"
	"cascade_backend/migrations"
	"cascade_backend/platform/config"
	"cascade_backend/platform/db"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"
	"cascade_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New()
	sender := email.NewSender(cfg)
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	cascadeModule, err := cascade.NewModule(pool, cfg, val, eventBus, sender, appMetrics, log)
	if err != nil {
		log.Error("failed to initialize cascade module", "error", err)
		panic("failed to initialize cascade module: " + err.Error())
	}
	seeded, err := cascadeModule.Configs.EnsureSeed(ctx, cfg.GetAutomationConfigSeed())
	if err != nil {
		log.Error("failed to seed automation config", "error", err, "path", cfg.GetAutomationConfigSeed())
		panic("failed to seed automation config: " + err.Error())
	}
	if seeded {
		log.Info("automation config seeded", "path", cfg.GetAutomationConfigSeed())
	}

	inAppService := inapp.NewService(inapp.NewRepository(pool), log)
	dispatcherOpts := []notify.Option{
		notify.WithTimeout(cfg.GetNotifyTimeout()),
		notify.WithLogger(log),
		notify.WithMetrics(appMetrics),
		notify.WithBaseURL(cfg.GetAppBaseURL()),
	}
	if wa := whatsapp.NewClient(cfg, cfg.GetPhoneRegion(), log); wa.Enabled() {
		dispatcherOpts = append(dispatcherOpts, notify.WithWhatsApp(wa))
	}
	dispatcher := notify.New(cascadeModule.Ledger, cascadeModule.Ledger, inAppService, sender, dispatcherOpts...)

	// Notification module reacts to intake and reassignment events
	notificationModule := notification.New(cascadeModule.Ledger, dispatcher, inAppService, log)
	notificationModule.RegisterHandlers(eventBus)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		Metrics:  appMetrics,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			cascadeModule,
			notificationModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", appMetrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.GetMetricsAddr(), Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		return listen(srv)
	})
	g.Go(func() error {
		log.Info("metrics listening", "addr", cfg.GetMetricsAddr())
		return listen(metricsSrv)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}
	// Let in-flight event handlers finish before the pool closes.
	eventBus.Wait()
	log.Info("server stopped")
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
