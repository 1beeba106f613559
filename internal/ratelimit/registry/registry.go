// Package registry groups one sliding-window limiter per chat operation class.
//
// A Registry is owned by a single chat session and built explicitly from
// config, so limiter state never leaks between sessions or tests:
//
//	reg, _ := registry.New(config.DefaultConfig())
//	result, _ := reg.Allow(ctx, models.ClassMessage)
//	if !result.Allowed {
//	    // disable send, show a cooldown of result.RetryAfter
//	}
package registry

import (
	"context"
	"log/slog"

	"petchat/internal/ratelimit/config"
	"petchat/internal/ratelimit/limiter"
	"petchat/internal/ratelimit/metrics"
	"petchat/internal/ratelimit/models"
	"petchat/internal/ratelimit/observability"
	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/clock"
)

// Registry maps operation classes to independent limiters.
// The map is fixed after New, so lookups need no locking.
type Registry struct {
	limiters map[models.OperationClass]*limiter.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
}

// Option configures a Registry instance.
type Option func(*Registry)

// WithLogger sets the structured logger for denial and reset events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock injects the time source shared by every limiter.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// New builds one limiter per class in cfg. Invalid limits fail fast.
func New(cfg *config.Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate limit config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		limiters: make(map[models.OperationClass]*limiter.Limiter, len(cfg.Limits)),
		logger:   slog.Default(),
		clock:    clock.System,
	}
	for _, opt := range opts {
		opt(r)
	}

	for class, limit := range cfg.Limits {
		l, err := limiter.New(limit.RequestsPerWindow, limit.Window, limiter.WithClock(r.clock))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid limit for class "+class.String())
		}
		r.limiters[class] = l
	}
	return r, nil
}

// Limiter returns the limiter for class.
func (r *Registry) Limiter(class models.OperationClass) (*limiter.Limiter, error) {
	l, ok := r.limiters[class]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no rate limit configured for class "+class.String())
	}
	return l, nil
}

// Allow runs one admission decision for class.
func (r *Registry) Allow(ctx context.Context, class models.OperationClass) (*models.RateLimitResult, error) {
	l, err := r.Limiter(class)
	if err != nil {
		return nil, err
	}

	allowed := l.CanMakeRequest()
	status := l.Snapshot()
	result := &models.RateLimitResult{
		Class:     class,
		Allowed:   allowed,
		Limit:     status.Limit,
		Remaining: status.Remaining,
	}
	if !allowed {
		result.RetryAfter = status.RetryAfter
		r.logger.WarnContext(ctx, "rate_limit_denied",
			"class", class,
			"limit", status.Limit,
			"window_ms", status.WindowMs(),
			"retry_after_ms", status.RetryAfterMs(),
		)
	}
	if r.metrics != nil {
		r.metrics.RecordDecision(class.String(), allowed, status.Remaining)
	}
	return result, nil
}

// Status reports headroom for class without consuming quota.
func (r *Registry) Status(class models.OperationClass) (models.Status, error) {
	l, err := r.Limiter(class)
	if err != nil {
		return models.Status{}, err
	}
	return l.Snapshot(), nil
}

// Snapshot reports headroom for every configured class.
func (r *Registry) Snapshot() map[models.OperationClass]models.Status {
	out := make(map[models.OperationClass]models.Status, len(r.limiters))
	for class, l := range r.limiters {
		out[class] = l.Snapshot()
	}
	return out
}

// Classes returns configured classes in a stable order.
func (r *Registry) Classes() []models.OperationClass {
	classes := make([]models.OperationClass, 0, len(r.limiters))
	for _, class := range models.AllClasses {
		if _, ok := r.limiters[class]; ok {
			classes = append(classes, class)
		}
	}
	return classes
}

// Release returns the most recent admission for class to the pool. Callers
// use it when an admitted operation failed before it reached the server.
func (r *Registry) Release(ctx context.Context, class models.OperationClass) error {
	l, err := r.Limiter(class)
	if err != nil {
		return err
	}
	l.Release()
	r.logger.DebugContext(ctx, "rate_limit_released", "class", class)
	return nil
}

// Reset clears recorded requests for class.
func (r *Registry) Reset(ctx context.Context, class models.OperationClass) error {
	l, err := r.Limiter(class)
	if err != nil {
		return err
	}
	l.Reset()
	observability.LogAudit(ctx, r.logger, "rate_limit_reset", "class", class)
	if r.metrics != nil {
		r.metrics.IncrementResets(class.String())
	}
	return nil
}

// ResetAll clears every class and returns the classes reset.
func (r *Registry) ResetAll(ctx context.Context) []models.OperationClass {
	classes := r.Classes()
	for _, class := range classes {
		// Classes only returns configured classes, so Reset cannot fail here.
		_ = r.Reset(ctx, class)
	}
	return classes
}
