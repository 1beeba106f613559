package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"petchat/internal/chat/models"
	"petchat/internal/chat/service"
	"petchat/internal/connection"
	"petchat/internal/connection/indicator"
	rlmodels "petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/httputil"
	request "petchat/pkg/platform/middleware/request"
)

type Session interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendResult, error)
	Flush(ctx context.Context) (models.FlushResult, error)
	Pending() int
	Cooldown(class rlmodels.OperationClass) (time.Duration, error)
}

// StateSource reports the transport's classified state.
type StateSource interface {
	State() connection.State
}

type Handler struct {
	session Session
	state   StateSource
	logger  *slog.Logger
}

func New(session Session, state StateSource, logger *slog.Logger) *Handler {
	return &Handler{
		session: session,
		state:   state,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/chat/status", h.HandleStatus)
	r.Post("/chat/messages", h.HandleSendMessage)
	r.Post("/chat/flush", h.HandleFlush)
}

type StatusResponse struct {
	Connection connection.State    `json:"connection"`
	Indicator  indicator.Indicator `json:"indicator"`
	Pending    int                 `json:"pending"`
	CooldownMs map[string]int64    `json:"cooldown_ms"`
}

// HandleStatus implements GET /chat/status.
// Output: { "connection": {...}, "indicator": {...}, "pending": 2, "cooldown_ms": {"message": 0, ...} }
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := h.state.State()
	resp := StatusResponse{
		Connection: state,
		Indicator:  indicator.FromState(state),
		Pending:    h.session.Pending(),
		CooldownMs: make(map[string]int64, len(rlmodels.AllClasses)),
	}
	for _, class := range rlmodels.AllClasses {
		cooldown, err := h.session.Cooldown(class)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to read cooldown",
				"error", err,
				"class", class,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteError(w, err)
			return
		}
		resp.CooldownMs[class.String()] = cooldown.Milliseconds()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// sendMessageBody is decoded without validation; the session normalizes
// before it validates.
type sendMessageBody struct {
	ChatID      string             `json:"chatId"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"messageType"`
}

// HandleSendMessage implements POST /chat/messages.
//
// Input: { "chatId": "c1", "content": "hi", "messageType": "text" }
// Output: 200 { "id": "...", "queued": false }, or 202 when queued offline.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	body, ok := httputil.DecodeJSON[sendMessageBody](w, r, h.logger, requestID)
	if !ok {
		return
	}

	result, err := h.session.SendMessage(ctx, models.SendMessageRequest{
		ChatID:      body.ChatID,
		Content:     body.Content,
		MessageType: body.MessageType,
	})
	if err != nil {
		if retryAfter, limited := service.RetryAfter(err); limited {
			httputil.WriteRetryAfter(w, retryAfter.Milliseconds())
			httputil.WriteJSON(w, http.StatusTooManyRequests, rlmodels.RateLimitExceededResponse{
				Error:        httputil.DomainCodeToHTTPCode(dErrors.CodeRateLimited),
				Message:      "Too many messages. Please wait before sending more.",
				RetryAfterMs: retryAfter.Milliseconds(),
			})
			return
		}
		h.logger.WarnContext(ctx, "failed to send message",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, result)
}

// HandleFlush implements POST /chat/flush.
// Output: { "sent": 2, "remaining": 0 }
func (h *Handler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.session.Flush(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to flush offline queue",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
