package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// Sweeper re-evaluates running SLAs.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// SLAWorker runs the SLA sweep on a cron schedule. Overlapping runs are skipped.
type SLAWorker struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
	timeout time.Duration
}

// NewSLAWorker schedules sweeper according to cfg.
func NewSLAWorker(sweeper Sweeper, cfg config.SLAConfig, logger *zap.Logger) (*SLAWorker, error) {
	logger = observability.OrNop(logger).Named("sla_worker")
	cronLogger := zapCronLogger{sugar: logger.Sugar()}
	w := &SLAWorker{
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper: sweeper,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
	if _, err := w.cron.AddFunc(cfg.SweepSchedule, w.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule sla sweep %q: %w", cfg.SweepSchedule, err)
	}
	return w, nil
}

// Start begins running the schedule in the background.
func (w *SLAWorker) Start() {
	w.cron.Start()
	for _, entry := range w.cron.Entries() {
		w.logger.Info("sla sweep scheduled", zap.Time("next_run", entry.Next))
	}
}

// Stop halts the schedule and waits for a running sweep until ctx expires.
func (w *SLAWorker) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep and logs its outcome.
func (w *SLAWorker) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	started := time.Now()
	result, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("sla sweep failed", zap.Error(err), zap.Int("scanned", result.Scanned))
		return
	}
	w.logger.Info("sla sweep run",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("breached", result.Breached),
		zap.Int("escalated", result.Escalated),
		zap.Duration("took", time.Since(started)))
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
