package flush

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"petchat/internal/chat/models"
	"petchat/internal/connection"
	dErrors "petchat/pkg/domain-errors"
)

// Flusher replays the offline queue.
type Flusher interface {
	Flush(ctx context.Context) (models.FlushResult, error)
	Pending() int
}

// Worker replays queued messages on a ticker and immediately after the
// transport reconnects.
type Worker struct {
	flusher  Flusher
	interval time.Duration
	logger   *slog.Logger
	trigger  chan struct{}
}

type Option func(*Worker)

// WithInterval overrides the flush interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func New(flusher Flusher, opts ...Option) (*Worker, error) {
	if flusher == nil {
		return nil, fmt.Errorf("flusher is required")
	}
	w := &Worker{
		flusher:  flusher,
		interval: 5 * time.Second,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Watch schedules a flush whenever tracker moves to connected.
func (w *Worker) Watch(tracker *connection.Tracker) {
	tracker.OnChange(func(_, to connection.Status) {
		if to == connection.StatusConnected {
			w.Trigger()
		}
	})
}

// Trigger asks the running worker to flush now. It never blocks; triggers
// that arrive while one is pending collapse into it.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start runs flushes until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-w.trigger:
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := w.RunOnce(ctx); err != nil {
			if dErrors.IsTransient(err) {
				w.logger.WarnContext(ctx, "offline queue flush deferred", "error", err)
				continue
			}
			w.logger.ErrorContext(ctx, "offline queue flush failed", "error", err)
		}
	}
}

// RunOnce performs a single flush. An empty queue is skipped.
func (w *Worker) RunOnce(ctx context.Context) (models.FlushResult, error) {
	if w.flusher.Pending() == 0 {
		return models.FlushResult{}, nil
	}
	res, err := w.flusher.Flush(ctx)
	if err != nil {
		return res, fmt.Errorf("flush offline queue: %w", err)
	}
	return res, nil
}
