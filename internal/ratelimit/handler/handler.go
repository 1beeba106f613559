package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"petchat/internal/ratelimit/models"
	"petchat/pkg/platform/httputil"
	request "petchat/pkg/platform/middleware/request"
)

type Service interface {
	Classes() []models.OperationClass
	Status(class models.OperationClass) (models.Status, error)
	Reset(ctx context.Context, class models.OperationClass) error
	ResetAll(ctx context.Context) []models.OperationClass
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/rate-limit", h.HandleSnapshot)
	r.Get("/admin/rate-limit/{class}", h.HandleStatus)
	r.Post("/admin/rate-limit/reset", h.HandleReset)
}

// HandleSnapshot implements GET /admin/rate-limit.
// Output: { "limits": [ { "class": "message", "limit": 30, ... } ] }
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classes := h.service.Classes()
	resp := models.SnapshotResponse{Limits: make([]models.StatusResponse, 0, len(classes))}
	for _, class := range classes {
		status, err := h.service.Status(class)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to read rate limit status",
				"error", err,
				"class", class,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteError(w, err)
			return
		}
		resp.Limits = append(resp.Limits, models.NewStatusResponse(class, status))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleStatus implements GET /admin/rate-limit/{class}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	class, err := models.ParseOperationClass(chi.URLParam(r, "class"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.service.Status(class)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStatusResponse(class, status))
}

// HandleReset implements POST /admin/rate-limit/reset.
//
// Input: { "class": "typing" } or { "all": true }
// Output: { "reset": ["typing"] }
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeJSON[models.ResetRateLimitRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	if req.All {
		httputil.WriteJSON(w, http.StatusOK, models.ResetResponse{Reset: h.service.ResetAll(ctx)})
		return
	}

	class := models.OperationClass(req.Class)
	if err := h.service.Reset(ctx, class); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit",
			"error", err,
			"class", class,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ResetResponse{Reset: []models.OperationClass{class}})
}
