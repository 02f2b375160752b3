package scheduler

import (
	"context"
	"fmt"

	"cascade_backend/platform/config"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ReportDeliverer sends one manager's copy of a day's report.
type ReportDeliverer interface {
	DeliverByID(ctx context.Context, managerID uuid.UUID, day string) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	reports ReportDeliverer
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reports ReportDeliverer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		reports: reports,
		log:     log,
	}

	mux.HandleFunc(TaskDailyReport, w.handleDailyReport)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleDailyReport(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDailyReportPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	managerID, err := uuid.Parse(payload.ManagerID)
	if err != nil {
		return fmt.Errorf("%w: invalid manager id: %v", asynq.SkipRetry, err)
	}

	if err := w.reports.DeliverByID(ctx, managerID, payload.Day); err != nil {
		w.log.Warn("daily report task failed", "managerId", managerID, "day", payload.Day, "error", err)
		return err
	}
	w.log.Info("daily report delivered", "managerId", managerID, "day", payload.Day)
	return nil
}
