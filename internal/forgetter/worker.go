package forgetter

import (
	"context"
	"log/slog"
	"time"
)

// WorkerConfig controls the background maintenance sweep.
type WorkerConfig struct {
	// Interval between sweeps over every known user. Default: 10 minutes.
	Interval time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
}

// Worker periodically runs RunMaintenance for every user with persisted
// records, so decay and caps are enforced even for users who never
// trigger the /maintenance/cleanup endpoint or end a session again.
type Worker struct {
	forgetter *Forgetter
	config    WorkerConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(f *Forgetter, cfg WorkerConfig, logger *slog.Logger) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		forgetter: f,
		config:    cfg,
		logger:    logger.With("component", "forgetter"),
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine. Call Stop to shut it down.
func (w *Worker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(workerCtx)
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("forgetter worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	userIDs, err := w.forgetter.storage.AllUserIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list users for maintenance sweep", "error", err)
		return
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.forgetter.RunMaintenance(ctx, userID); err != nil {
			w.logger.Warn("maintenance sweep failed for user", "user_id", userID, "error", err)
		}
	}
	if len(userIDs) > 0 {
		w.logger.Debug("maintenance sweep complete", "users", len(userIDs))
	}
}
