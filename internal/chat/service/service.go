// Package service is the chat session: the single place outgoing chat
// operations pass through before reaching the socket. It applies the
// per-class rate limits, holds messages while offline and replays them once
// the transport reconnects.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"petchat/internal/chat/metrics"
	"petchat/internal/chat/models"
	"petchat/internal/platform/tracer"
	rlmodels "petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/clock"

	"github.com/google/uuid"
)

// DefaultMaxQueue bounds the offline queue.
const DefaultMaxQueue = 100

type Session struct {
	emitter Emitter
	status  StatusReader
	limits  Limits

	tracer   tracer.Tracer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
	maxQueue int

	mu     sync.Mutex
	queue  []models.QueuedMessage
	typing map[string]bool
	joined map[string]bool

	// flushMu keeps replays in order when the worker tick and a reconnect
	// trigger race.
	flushMu sync.Mutex
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMaxQueue overrides the offline queue bound when n > 0.
func WithMaxQueue(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxQueue = n
		}
	}
}

func New(emitter Emitter, status StatusReader, limits Limits, opts ...Option) (*Session, error) {
	if emitter == nil || status == nil || limits == nil {
		return nil, fmt.Errorf("emitter, status and limits are required")
	}
	s := &Session{
		emitter:  emitter,
		status:   status,
		limits:   limits,
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
		clock:    clock.System,
		maxQueue: DefaultMaxQueue,
		typing:   make(map[string]bool),
		joined:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// JoinChat subscribes to chatID. Limited by the join class.
func (s *Session) JoinChat(ctx context.Context, chatID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "chat.join", tracer.String("chat_id", chatID))
	defer func() { span.End(err) }()

	if err := models.ValidateChatID(chatID); err != nil {
		return err
	}
	if !s.status.IsConnected() {
		return dErrors.New(dErrors.CodeUnavailable, "cannot join chat while disconnected")
	}
	if err := s.admit(ctx, rlmodels.ClassJoin); err != nil {
		return err
	}
	if err := s.emitter.Emit(ctx, s.envelope(models.EventJoinChat, chatID)); err != nil {
		return err
	}

	s.mu.Lock()
	s.joined[chatID] = true
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "chat_joined", "chat_id", chatID)
	return nil
}

// LeaveChat unsubscribes from chatID and stops any typing indicator there.
// It is never rate limited. While disconnected only local state is cleared,
// since the server drops memberships with the socket.
func (s *Session) LeaveChat(ctx context.Context, chatID string) error {
	if err := models.ValidateChatID(chatID); err != nil {
		return err
	}
	s.StopTyping(ctx, chatID)

	s.mu.Lock()
	delete(s.joined, chatID)
	s.mu.Unlock()

	if !s.status.IsConnected() {
		return nil
	}
	return s.emitter.Emit(ctx, s.envelope(models.EventLeaveChat, chatID))
}

// Joined reports whether chatID was joined on this session.
func (s *Session) Joined(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined[chatID]
}

// SendMessage validates req and sends it. While disconnected the message is
// queued and the result has Queued set. When connected the message class
// limiter decides; a denial returns a *RateLimitedError, even when older
// messages are still queued. A slot taken by an emit that fails is returned.
func (s *Session) SendMessage(ctx context.Context, req models.SendMessageRequest) (result *models.SendResult, err error) {
	ctx, span := s.tracer.Start(ctx, "chat.send_message", tracer.String("chat_id", req.ChatID))
	defer func() { span.End(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.StopTyping(ctx, req.ChatID)

	if !s.status.IsConnected() {
		return s.enqueue(ctx, req)
	}
	if s.Pending() > 0 {
		// Older messages are still waiting; go behind them to keep order.
		return s.sendBehindQueue(ctx, req)
	}

	if err := s.admit(ctx, rlmodels.ClassMessage); err != nil {
		return nil, err
	}

	env := s.messageEnvelope(uuid.New(), req)
	if err := s.emitter.Emit(ctx, env); err != nil {
		s.release(ctx, rlmodels.ClassMessage)
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			// Lost the socket between the status check and the write.
			span.AddEvent("transport_lost")
			return s.enqueueWithID(ctx, env.ID, req)
		}
		return nil, err
	}
	return &models.SendResult{ID: env.ID}, nil
}

// StartTyping announces typing in chatID. Repeated calls while already
// typing are no-ops. Denied or disconnected attempts are dropped silently:
// a missing typing indicator is not worth an error.
func (s *Session) StartTyping(ctx context.Context, chatID string) {
	if models.ValidateChatID(chatID) != nil {
		return
	}
	s.mu.Lock()
	already := s.typing[chatID]
	s.mu.Unlock()
	if already {
		return
	}

	if !s.status.IsConnected() {
		s.dropped(models.EventTypingStart, "disconnected")
		return
	}
	result, err := s.limits.Allow(ctx, rlmodels.ClassTyping)
	if err != nil || !result.Allowed {
		s.dropped(models.EventTypingStart, "rate_limited")
		return
	}

	env := s.envelope(models.EventTypingStart, chatID)
	env.IsTyping = boolPtr(true)
	if err := s.emitter.Emit(ctx, env); err != nil {
		s.logger.DebugContext(ctx, "typing_start_failed", "chat_id", chatID, "error", err)
		s.release(ctx, rlmodels.ClassTyping)
		s.dropped(models.EventTypingStart, "emit_failed")
		return
	}

	s.mu.Lock()
	s.typing[chatID] = true
	s.mu.Unlock()
}

// StopTyping clears the typing indicator in chatID if one is showing.
func (s *Session) StopTyping(ctx context.Context, chatID string) {
	s.mu.Lock()
	was := s.typing[chatID]
	delete(s.typing, chatID)
	s.mu.Unlock()
	if !was || !s.status.IsConnected() {
		return
	}

	env := s.envelope(models.EventTypingStop, chatID)
	env.IsTyping = boolPtr(false)
	if err := s.emitter.Emit(ctx, env); err != nil {
		s.logger.DebugContext(ctx, "typing_stop_failed", "chat_id", chatID, "error", err)
	}
}

// Typing reports whether a typing indicator is showing in chatID.
func (s *Session) Typing(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[chatID]
}

// Flush replays queued messages in order while the transport is connected
// and the message limiter admits them. Whatever is left stays queued for
// the next flush.
func (s *Session) Flush(ctx context.Context) (result models.FlushResult, err error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "chat.flush")
	defer func() {
		span.SetAttributes(tracer.Int("sent", result.Sent), tracer.Int("remaining", result.Remaining))
		span.End(err)
	}()

	for {
		next, ok := s.peek()
		if !ok || !s.status.IsConnected() {
			break
		}
		admitted, aerr := s.limits.Allow(ctx, rlmodels.ClassMessage)
		if aerr != nil {
			err = aerr
			break
		}
		if !admitted.Allowed {
			break
		}
		if eerr := s.emitter.Emit(ctx, s.messageEnvelope(next.ID, next.Request)); eerr != nil {
			s.release(ctx, rlmodels.ClassMessage)
			if !dErrors.HasCode(eerr, dErrors.CodeUnavailable) {
				err = eerr
			}
			break
		}
		s.pop(next.ID)
		result.Sent++
	}

	result.Remaining = s.Pending()
	if s.metrics != nil && result.Sent > 0 {
		s.metrics.RecordFlushed(result.Sent, result.Remaining)
	}
	if result.Sent > 0 {
		s.logger.InfoContext(ctx, "offline_queue_flushed", "sent", result.Sent, "remaining", result.Remaining)
	}
	return result, err
}

// Pending returns the number of queued messages.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Cooldown is how long until class admits another operation, or zero when
// it has headroom now.
func (s *Session) Cooldown(class rlmodels.OperationClass) (time.Duration, error) {
	status, err := s.limits.Status(class)
	if err != nil {
		return 0, err
	}
	if status.Remaining > 0 {
		return 0, nil
	}
	return status.RetryAfter, nil
}

func (s *Session) admit(ctx context.Context, class rlmodels.OperationClass) error {
	result, err := s.limits.Allow(ctx, class)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return newRateLimitedError(result)
	}
	return nil
}

// release hands back a slot whose admitted event never reached the server, so
// a later retry of the same event is not charged twice.
func (s *Session) release(ctx context.Context, class rlmodels.OperationClass) {
	if err := s.limits.Release(ctx, class); err != nil {
		s.logger.WarnContext(ctx, "rate_limit_release_failed", "class", class, "error", err)
	}
}

func (s *Session) enqueue(ctx context.Context, req models.SendMessageRequest) (*models.SendResult, error) {
	return s.enqueueWithID(ctx, uuid.New(), req)
}

func (s *Session) enqueueWithID(ctx context.Context, id uuid.UUID, req models.SendMessageRequest) (*models.SendResult, error) {
	s.mu.Lock()
	if len(s.queue) >= s.maxQueue {
		s.mu.Unlock()
		s.dropped(models.EventSendMessage, "queue_full")
		return nil, dErrors.New(dErrors.CodeUnavailable, "offline queue is full")
	}
	s.queue = append(s.queue, models.QueuedMessage{ID: id, Request: req, QueuedAt: s.clock.Now()})
	depth := len(s.queue)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordQueued(depth)
	}
	s.logger.InfoContext(ctx, "message_queued_offline", "chat_id", req.ChatID, "queue_depth", depth)
	return &models.SendResult{ID: id, Queued: true}, nil
}

func (s *Session) sendBehindQueue(ctx context.Context, req models.SendMessageRequest) (*models.SendResult, error) {
	// Connected callers see the limiter, not the backlog: with no message
	// headroom left the send is refused rather than parked.
	status, err := s.limits.Status(rlmodels.ClassMessage)
	if err != nil {
		return nil, err
	}
	if status.Remaining == 0 {
		return nil, &RateLimitedError{Class: rlmodels.ClassMessage, RetryAfter: status.RetryAfter}
	}

	result, err := s.enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.Flush(ctx); err != nil {
		return result, err
	}
	result.Queued = s.isQueued(result.ID)
	return result, nil
}

func (s *Session) isQueued(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.queue {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) peek() (models.QueuedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return models.QueuedMessage{}, false
	}
	return s.queue[0], true
}

func (s *Session) pop(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 && s.queue[0].ID == id {
		s.queue = s.queue[1:]
	}
}

func (s *Session) envelope(event models.Event, chatID string) *models.Envelope {
	return models.NewEnvelope(event, chatID, s.clock.Now())
}

func (s *Session) messageEnvelope(id uuid.UUID, req models.SendMessageRequest) *models.Envelope {
	env := s.envelope(models.EventSendMessage, req.ChatID)
	env.ID = id
	env.Content = req.Content
	env.MessageType = req.MessageType
	return env
}

func (s *Session) dropped(event models.Event, reason string) {
	if s.metrics != nil {
		s.metrics.IncrementDropped(event.String(), reason)
	}
}

func boolPtr(b bool) *bool { return &b }
