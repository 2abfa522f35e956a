package reputation

import (
	"context"
	"log/slog"
	"time"
)

// Worker periodically reconciles stored records: it rebuilds each total
// from its sub-accumulators and refreshes the level, repairing any drift
// left by interrupted writes or manual data surgery.
type Worker struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewWorker creates a reconcile worker.
// interval is typically 15 minutes in production.
func NewWorker(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the reconcile loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start
	w.reconcileAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.reconcileAll(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) reconcileAll(ctx context.Context) {
	uids, err := w.store.UIDs(ctx)
	if err != nil {
		w.logger.Warn("reconcile failed to list records", "error", err)
		return
	}

	if len(uids) == 0 {
		return
	}

	var failed int
	for _, uid := range uids {
		if ctx.Err() != nil {
			return
		}
		if err := w.service.Reconcile(ctx, uid); err != nil {
			failed++
			w.logger.Warn("reconcile failed for record", "uid", uid, "error", err)
		}
	}

	w.logger.Info("reconcile pass completed", "records", len(uids), "failed", failed)
}
