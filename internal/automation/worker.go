package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts 5-field cron expressions and descriptors such as "@every 60s".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidSchedule reports whether expr can drive the reminder worker.
func ValidSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("automation: reminder schedule %q: %w", expr, err)
	}
	return nil
}

// Worker runs the reminder sweep on a cron schedule. Overlapping runs are
// skipped and a panicking run is recovered.
type Worker struct {
	cron    *cron.Cron
	job     cron.Job
	sweeper *Sweeper
	logger  *slog.Logger
	ctx     context.Context
}

func NewWorker(sweeper *Sweeper, schedule string, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "reminder-worker")),
		ctx:     context.Background(),
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(w.logger.Handler(), slog.LevelError))
	w.job = cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(w.run))
	w.cron = cron.New(cron.WithParser(scheduleParser), cron.WithLogger(cronLogger))
	if _, err := w.cron.AddJob(schedule, w.job); err != nil {
		return nil, fmt.Errorf("automation: reminder schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs one sweep right away and then follows the schedule until Stop.
func (w *Worker) Start(ctx context.Context) {
	w.ctx = ctx
	go w.job.Run()
	w.cron.Start()
	w.logger.Info("reminder worker started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("reminder worker stopped")
}

func (w *Worker) run() {
	sent, err := w.sweeper.Sweep(w.ctx)
	if err != nil {
		w.logger.Error("reminder sweep failed", slog.Any("error", err))
		return
	}
	if sent > 0 {
		w.logger.Info("reminder sweep finished", slog.Int("sent", sent))
	}
}
