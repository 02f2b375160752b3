package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade_backend/internal/cascade/configstore"
	"cascade_backend/internal/cascade/engine"
	"cascade_backend/internal/cascade/notify"
	"cascade_backend/internal/cascade/reporting"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/cascade/selector"
	"cascade_backend/internal/email"
	"cascade_backend/internal/events"
	"cascade_backend/internal/notification"
	"cascade_backend/internal/notification/inapp"
	"cascade_backend/internal/scheduler"
	"cascade_backend/internal/whatsapp"
	"cascade_backend/platform/config"
	"cascade_backend/platform/db"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"
	"cascade_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "tickInterval", cfg.GetTickInterval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		log.Error("invalid cascade timezone", "error", err, "timezone", cfg.GetTimezone())
		panic("invalid cascade timezone: " + err.Error())
	}

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

	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New()
	sender := email.NewSender(cfg)
	val := validator.New()

	repo := repository.New(pool)
	configs := configstore.New(repo, val, configstore.WithDefaultTimezone(cfg.GetTimezone()))
	inAppService := inapp.NewService(inapp.NewRepository(pool), log)

	dispatcherOpts := []notify.Option{
		notify.WithTimeout(cfg.GetNotifyTimeout()),
		notify.WithLogger(log),
		notify.WithMetrics(appMetrics),
		notify.WithBaseURL(cfg.GetAppBaseURL()),
	}
	if wa := whatsapp.NewClient(cfg, cfg.GetPhoneRegion(), log); wa.Enabled() {
		dispatcherOpts = append(dispatcherOpts, notify.WithWhatsApp(wa))
		log.Info("whatsapp notifications enabled")
	}
	dispatcher := notify.New(repo, repo, inAppService, sender, dispatcherOpts...)

	// Redistribution and unassignable alerts raised by the tick go through the bus.
	notification.New(repo, dispatcher, nil, log).RegisterHandlers(eventBus)

	cascadeEngine := engine.New(repo, selector.New(repo, repo), dispatcher, configs,
		engine.WithLogger(log),
		engine.WithMetrics(appMetrics),
		engine.WithPublisher(eventBus),
		engine.WithLocation(loc),
		engine.WithBatchSize(cfg.GetTickBatchSize()),
		engine.WithWorkers(cfg.GetTickWorkers()),
		engine.WithEscalationGrace(cfg.GetEscalationGrace()),
	)

	runnerOpts := []scheduler.RunnerOption{scheduler.WithRunnerMetrics(appMetrics)}
	reporterOpts := []reporting.Option{
		reporting.WithLocation(loc),
		reporting.WithBaseURL(cfg.GetAppBaseURL()),
		reporting.WithLogger(log),
		reporting.WithMetrics(appMetrics),
		reporting.WithInApp(inAppService),
	}

	redisEnabled := cfg.GetRedisURL() != ""
	if redisEnabled {
		redisClient, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		runnerOpts = append(runnerOpts, scheduler.WithLock(scheduler.NewRedisLock(redisClient, "", cfg.GetTickLockTTL())))

		queue, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize task queue client", "error", err)
			panic("failed to initialize task queue client: " + err.Error())
		}
		defer func() { _ = queue.Close() }()
		reporterOpts = append(reporterOpts, reporting.WithQueue(queue))
	} else {
		log.Warn("REDIS_URL not set; running without tick lock and with inline report delivery")
	}

	reporter := reporting.New(repo, repo, sender, reporterOpts...)
	runner := scheduler.NewCascadeRunner(cascadeEngine, cfg.GetTickInterval(), log, runnerOpts...)
	sweeper := scheduler.NewRetentionSweeper(repo, log, appMetrics, cfg.GetRetentionInterval(), cfg.GetRetentionWindow())

	reportCron, err := reporter.Schedule(ctx, cfg.GetReportCron())
	if err != nil {
		log.Error("failed to schedule daily report", "error", err, "cron", cfg.GetReportCron())
		panic("failed to schedule daily report: " + err.Error())
	}
	reportCron.Start()
	defer func() { <-reportCron.Stop().Done() }()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", appMetrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.GetMetricsAddr(), Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	if redisEnabled {
		worker, err := scheduler.NewWorker(cfg, reporter, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("metrics listening", "addr", cfg.GetMetricsAddr())
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler error", "error", err)
	}
	eventBus.Wait()
	log.Info("scheduler stopped")
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
