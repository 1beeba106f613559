package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"petchat/internal/chat/metrics"
	"petchat/internal/chat/models"
	"petchat/internal/chat/service/mocks"
	"petchat/internal/connection"
	rlconfig "petchat/internal/ratelimit/config"
	rlmodels "petchat/internal/ratelimit/models"
	"petchat/internal/ratelimit/registry"
	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/clock"
	"petchat/pkg/testutil"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type SessionSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	emitter *mocks.MockEmitter
	tracker *connection.Tracker
	clock   *clock.Fake
	metrics *metrics.Metrics
	limits  *registry.Registry
	session *Session
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.emitter = mocks.NewMockEmitter(s.ctrl)
	s.tracker = connection.NewTracker()
	s.clock = clock.NewFake(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	s.metrics = metrics.New(prometheus.NewRegistry())

	cfg := &rlconfig.Config{Limits: map[rlmodels.OperationClass]rlconfig.Limit{
		rlmodels.ClassMessage: {RequestsPerWindow: 2, Window: time.Minute},
		rlmodels.ClassTyping:  {RequestsPerWindow: 1, Window: time.Minute},
		rlmodels.ClassJoin:    {RequestsPerWindow: 1, Window: time.Minute},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.limits, err = registry.New(cfg, registry.WithClock(s.clock), registry.WithLogger(logger))
	s.Require().NoError(err)

	s.session, err = New(s.emitter, s.tracker, s.limits,
		WithClock(s.clock),
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithMaxQueue(3),
	)
	s.Require().NoError(err)
}

func (s *SessionSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *SessionSuite) text(chatID, content string) models.SendMessageRequest {
	return models.SendMessageRequest{ChatID: chatID, Content: content, MessageType: models.MessageTypeText}
}

func (s *SessionSuite) remaining(class rlmodels.OperationClass) int {
	status, err := s.limits.Status(class)
	s.Require().NoError(err)
	return status.Remaining
}

func (s *SessionSuite) expectEvent(event models.Event, n int) *gomock.Call {
	return s.emitter.EXPECT().
		Emit(gomock.Any(), eventIs(event)).
		Return(nil).
		Times(n)
}

// eventIs matches envelopes carrying event.
type eventIs models.Event

func (e eventIs) Matches(x any) bool {
	env, ok := x.(*models.Envelope)
	return ok && env.Event == models.Event(e)
}

func (e eventIs) String() string { return "envelope with event " + string(e) }

func (s *SessionSuite) TestNew_RequiresCollaborators() {
	_, err := New(nil, s.tracker, nil)
	s.Error(err)
}

func (s *SessionSuite) TestJoinChat() {
	s.Run("rejects blank chat id", func() {
		err := s.session.JoinChat(s.ctx, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unavailable while disconnected", func() {
		err := s.session.JoinChat(s.ctx, "c1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("emits join and then rate limits", func() {
		s.tracker.MarkConnected()
		s.expectEvent(models.EventJoinChat, 1)

		s.Require().NoError(s.session.JoinChat(s.ctx, "c1"))
		s.True(s.session.Joined("c1"))

		err := s.session.JoinChat(s.ctx, "c2")
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		retry, ok := RetryAfter(err)
		s.True(ok)
		s.Equal(time.Minute, retry)
		s.False(s.session.Joined("c2"))
	})
}

func (s *SessionSuite) TestLeaveChat() {
	s.Run("is not rate limited", func() {
		s.tracker.MarkConnected()
		s.expectEvent(models.EventLeaveChat, 3)

		for range 3 {
			s.Require().NoError(s.session.LeaveChat(s.ctx, "c1"))
		}
	})

	s.Run("stops typing before leaving", func() {
		gomock.InOrder(
			s.expectEvent(models.EventTypingStart, 1),
			s.expectEvent(models.EventTypingStop, 1),
			s.expectEvent(models.EventLeaveChat, 1),
		)
		s.session.StartTyping(s.ctx, "c9")
		s.Require().NoError(s.session.LeaveChat(s.ctx, "c9"))
		s.False(s.session.Typing("c9"))
	})

	s.Run("clears local state only while disconnected", func() {
		s.tracker.MarkDisconnected()
		s.NoError(s.session.LeaveChat(s.ctx, "c1"))
	})
}

func (s *SessionSuite) TestSendMessage_Connected() {
	s.tracker.MarkConnected()

	var sent []*models.Envelope
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env *models.Envelope) error {
			sent = append(sent, env)
			return nil
		}).Times(2)

	first, err := s.session.SendMessage(s.ctx, s.text("c1", "  first  "))
	s.Require().NoError(err)
	s.False(first.Queued)
	_, err = s.session.SendMessage(s.ctx, s.text("c1", "second"))
	s.Require().NoError(err)

	s.Require().Len(sent, 2)
	s.Equal(first.ID, sent[0].ID)
	s.Equal("first", sent[0].Content)
	s.Equal(models.MessageTypeText, sent[0].MessageType)

	s.clock.Advance(10 * time.Second)
	_, err = s.session.SendMessage(s.ctx, s.text("c1", "third"))
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	retry, ok := RetryAfter(err)
	s.True(ok)
	s.Equal(50*time.Second, retry)

	cooldown, err := s.session.Cooldown(rlmodels.ClassMessage)
	s.Require().NoError(err)
	s.Equal(50*time.Second, cooldown)
}

func (s *SessionSuite) TestSendMessage_Validation() {
	s.tracker.MarkConnected()
	cases := []models.SendMessageRequest{
		{ChatID: "c1", Content: "   "},
		{ChatID: "c1", Content: strings.Repeat("x", models.MaxContentLength+1)},
		{ChatID: "c1", Content: "hi", MessageType: "sticker"},
		{Content: "hi"},
	}
	for _, req := range cases {
		_, err := s.session.SendMessage(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "request %+v", req)
	}
}

func (s *SessionSuite) TestSendMessage_QueuesWhileDisconnected() {
	for i := range 3 {
		res, err := s.session.SendMessage(s.ctx, s.text("c1", "offline"))
		s.Require().NoError(err, "message %d", i)
		s.True(res.Queued)
	}
	s.Equal(3, s.session.Pending())
	s.Equal(float64(3), promtestutil.ToFloat64(s.metrics.QueueDepth))

	_, err := s.session.SendMessage(s.ctx, s.text("c1", "overflow"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(3, s.session.Pending())
}

func (s *SessionSuite) TestSendMessage_QueuesWhenSocketDropsMidSend() {
	s.tracker.MarkConnected()
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Return(dErrors.New(dErrors.CodeUnavailable, "chat transport is not connected"))

	res, err := s.session.SendMessage(s.ctx, s.text("c1", "hello"))

	s.Require().NoError(err)
	s.True(res.Queued)
	s.Equal(1, s.session.Pending())
	s.Equal(2, s.remaining(rlmodels.ClassMessage), "a send that never left must not hold a slot")

	s.expectEvent(models.EventSendMessage, 1)
	flushed, err := s.session.Flush(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.FlushResult{Sent: 1, Remaining: 0}, flushed)
	s.Equal(1, s.remaining(rlmodels.ClassMessage), "one delivered message costs one slot")
}

func (s *SessionSuite) TestSendMessage_ReleasesSlotOnEmitError() {
	s.tracker.MarkConnected()
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Return(dErrors.New(dErrors.CodeInternal, "write failed"))

	_, err := s.session.SendMessage(s.ctx, s.text("c1", "hello"))

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(s.session.Pending())
	s.Equal(2, s.remaining(rlmodels.ClassMessage))
}

func (s *SessionSuite) TestFlush() {
	s.Run("no-op while disconnected", func() {
		_, err := s.session.SendMessage(s.ctx, s.text("c1", "a"))
		s.Require().NoError(err)

		res, err := s.session.Flush(s.ctx)
		s.Require().NoError(err)
		s.Equal(models.FlushResult{Sent: 0, Remaining: 1}, res)
	})

	s.Run("replays in order up to the message limit", func() {
		for _, c := range []string{"b", "c"} {
			_, err := s.session.SendMessage(s.ctx, s.text("c1", c))
			s.Require().NoError(err)
		}
		s.tracker.MarkConnected()

		var contents []string
		s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, env *models.Envelope) error {
				contents = append(contents, env.Content)
				return nil
			}).Times(2)

		res, err := s.session.Flush(s.ctx)
		s.Require().NoError(err)
		s.Equal(models.FlushResult{Sent: 2, Remaining: 1}, res)
		s.Equal([]string{"a", "b"}, contents)
		s.Equal(float64(2), promtestutil.ToFloat64(s.metrics.MessagesFlushedTotal))
	})

	s.Run("over-limit send is refused even with a backlog", func() {
		_, err := s.session.SendMessage(s.ctx, s.text("c1", "d"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		retry, ok := RetryAfter(err)
		s.True(ok)
		s.Equal(time.Minute, retry)
		s.Equal(1, s.session.Pending())
	})

	s.Run("new message goes out behind the backlog once the window slides", func() {
		s.clock.Advance(time.Minute)
		var contents []string
		s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, env *models.Envelope) error {
				contents = append(contents, env.Content)
				return nil
			}).Times(2)

		res, err := s.session.SendMessage(s.ctx, s.text("c1", "d"))
		s.Require().NoError(err)
		s.False(res.Queued)
		s.Zero(s.session.Pending())
		s.Equal([]string{"c", "d"}, contents)
		s.Zero(s.remaining(rlmodels.ClassMessage))
	})
}

func (s *SessionSuite) TestFlush_KeepsMessageWhenEmitFails() {
	_, err := s.session.SendMessage(s.ctx, s.text("c1", "a"))
	s.Require().NoError(err)
	s.tracker.MarkConnected()
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Return(dErrors.New(dErrors.CodeUnavailable, "gone"))

	res, err := s.session.Flush(s.ctx)

	s.Require().NoError(err)
	s.Equal(models.FlushResult{Sent: 0, Remaining: 1}, res)
	s.Equal(2, s.remaining(rlmodels.ClassMessage))
}

func (s *SessionSuite) TestTyping() {
	s.Run("dropped while disconnected", func() {
		s.session.StartTyping(s.ctx, "c1")
		s.False(s.session.Typing("c1"))
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.EventsDroppedTotal.WithLabelValues("typing_start", "disconnected")))
	})

	s.Run("start is idempotent", func() {
		s.tracker.MarkConnected()
		s.expectEvent(models.EventTypingStart, 1)

		s.session.StartTyping(s.ctx, "c1")
		s.session.StartTyping(s.ctx, "c1")
		s.True(s.session.Typing("c1"))
	})

	s.Run("stop is idempotent", func() {
		s.expectEvent(models.EventTypingStop, 1)

		s.session.StopTyping(s.ctx, "c1")
		s.session.StopTyping(s.ctx, "c1")
		s.False(s.session.Typing("c1"))
	})

	s.Run("denied start is dropped silently", func() {
		s.session.StartTyping(s.ctx, "c2")
		s.False(s.session.Typing("c2"))
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.EventsDroppedTotal.WithLabelValues("typing_start", "rate_limited")))
	})

	s.Run("sending a message stops typing", func() {
		s.clock.Advance(time.Minute)
		gomock.InOrder(
			s.expectEvent(models.EventTypingStart, 1),
			s.expectEvent(models.EventTypingStop, 1),
			s.expectEvent(models.EventSendMessage, 1),
		)
		s.session.StartTyping(s.ctx, "c3")
		_, err := s.session.SendMessage(s.ctx, s.text("c3", "done typing"))
		s.Require().NoError(err)
		s.False(s.session.Typing("c3"))
	})
}

func (s *SessionSuite) TestCooldown() {
	cooldown, err := s.session.Cooldown(rlmodels.ClassJoin)
	s.Require().NoError(err)
	s.Zero(cooldown)

	_, err = s.session.Cooldown(rlmodels.OperationClass("voice"))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SessionSuite) TestSendMessage_ConcurrentSendersShareOneQuota() {
	s.tracker.MarkConnected()
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	res := testutil.RunConcurrent(20, func(int) error {
		_, err := s.session.SendMessage(s.ctx, s.text("c1", "hi"))
		return err
	})

	s.Equal(int32(2), res.Successes)
	s.Equal(int32(18), res.RateLimited)
	s.Zero(res.Errors)
}
