package models

// StatusResponse is the admin view of one limiter.
type StatusResponse struct {
	Class        OperationClass `json:"class"`
	Limit        int            `json:"limit"`
	WindowMs     int64          `json:"window_ms"`
	Remaining    int            `json:"remaining"`
	RetryAfterMs int64          `json:"retry_after_ms"`
}

// NewStatusResponse flattens a Status for JSON output.
func NewStatusResponse(class OperationClass, s Status) StatusResponse {
	return StatusResponse{
		Class:        class,
		Limit:        s.Limit,
		WindowMs:     s.WindowMs(),
		Remaining:    s.Remaining,
		RetryAfterMs: s.RetryAfterMs(),
	}
}

type SnapshotResponse struct {
	Limits []StatusResponse `json:"limits"`
}

type ResetResponse struct {
	Reset []OperationClass `json:"reset"`
}

type RateLimitExceededResponse struct {
	Error        string `json:"error"` // "rate_limit_exceeded"
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}
