package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"petchat/internal/chat/handler/mocks"
	"petchat/internal/chat/models"
	"petchat/internal/chat/service"
	"petchat/internal/connection"
	"petchat/internal/connection/indicator"
	rlmodels "petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	ctrl    *gomock.Controller
	session *mocks.MockSession
	tracker *connection.Tracker
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.session = mocks.NewMockSession(s.ctrl)
	s.tracker = connection.NewTracker()
	h := New(s.session, s.tracker, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) serve(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestStatus() {
	s.tracker.MarkConnecting()
	s.session.EXPECT().Pending().Return(2)
	s.session.EXPECT().Cooldown(rlmodels.ClassMessage).Return(1500*time.Millisecond, nil)
	s.session.EXPECT().Cooldown(rlmodels.ClassTyping).Return(time.Duration(0), nil)
	s.session.EXPECT().Cooldown(rlmodels.ClassJoin).Return(time.Duration(0), nil)

	rec := s.serve(http.MethodGet, "/chat/status", "")

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp StatusResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(connection.StatusConnecting, resp.Connection.Status)
	s.Equal("Connecting...", resp.Connection.Label)
	s.True(resp.Indicator.Pulsing)
	s.Equal(indicator.ColorWarning, resp.Indicator.Color)
	s.Equal(2, resp.Pending)
	s.Equal(int64(1500), resp.CooldownMs["message"])
}

func (s *HandlerSuite) TestSendMessage() {
	s.Run("sent", func() {
		id := uuid.New()
		s.session.EXPECT().
			SendMessage(gomock.Any(), models.SendMessageRequest{ChatID: "c1", Content: "hi"}).
			Return(&models.SendResult{ID: id}, nil)

		rec := s.serve(http.MethodPost, "/chat/messages", `{"chatId":"c1","content":"hi"}`)

		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), id.String())
	})

	s.Run("queued offline", func() {
		s.session.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
			Return(&models.SendResult{ID: uuid.New(), Queued: true}, nil)

		rec := s.serve(http.MethodPost, "/chat/messages", `{"chatId":"c1","content":"hi"}`)

		s.Equal(http.StatusAccepted, rec.Code)
	})

	s.Run("rate limited", func() {
		s.session.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
			Return(nil, &service.RateLimitedError{Class: rlmodels.ClassMessage, RetryAfter: 2500 * time.Millisecond})

		rec := s.serve(http.MethodPost, "/chat/messages", `{"chatId":"c1","content":"hi"}`)

		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal("3", rec.Header().Get("Retry-After"))
		var resp rlmodels.RateLimitExceededResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(int64(2500), resp.RetryAfterMs)
		s.Equal("rate_limit_exceeded", resp.Error)
	})

	s.Run("invalid input", func() {
		s.session.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidInput, "message content cannot be empty"))

		rec := s.serve(http.MethodPost, "/chat/messages", `{"chatId":"c1","content":""}`)

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed body", func() {
		rec := s.serve(http.MethodPost, "/chat/messages", `{`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestFlush() {
	s.session.EXPECT().Flush(gomock.Any()).Return(models.FlushResult{Sent: 2}, nil)

	rec := s.serve(http.MethodPost, "/chat/flush", "")

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"sent":2,"remaining":0}`, rec.Body.String())
}
