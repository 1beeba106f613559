package models

import (
	"time"

	dErrors "petchat/pkg/domain-errors"
)

// OperationClass names an independently limited stream of chat operations.
type OperationClass string

const (
	// ClassMessage: outgoing chat messages (30 req/min)
	ClassMessage OperationClass = "message"
	// ClassTyping: typing indicator events (60 req/min)
	ClassTyping OperationClass = "typing"
	// ClassJoin: chat room join requests (20 req/min)
	ClassJoin OperationClass = "join"
)

// AllClasses lists the operation classes in a stable order.
var AllClasses = []OperationClass{ClassMessage, ClassTyping, ClassJoin}

func (c OperationClass) IsValid() bool {
	switch c {
	case ClassMessage, ClassTyping, ClassJoin:
		return true
	}
	return false
}

func (c OperationClass) String() string {
	return string(c)
}

// ParseOperationClass validates s as an OperationClass.
func ParseOperationClass(s string) (OperationClass, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "operation class cannot be empty")
	}
	c := OperationClass(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid operation class: must be 'message', 'typing' or 'join'")
	}
	return c, nil
}

// Status is a point-in-time view of one limiter's headroom.
type Status struct {
	Limit      int           `json:"limit"`
	Window     time.Duration `json:"-"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"-"`
}

// WindowMs returns the window length in milliseconds.
func (s Status) WindowMs() int64 { return s.Window.Milliseconds() }

// RetryAfterMs returns the time until one slot frees up, in milliseconds.
func (s Status) RetryAfterMs() int64 { return s.RetryAfter.Milliseconds() }

// RateLimitResult is the outcome of one admission decision.
type RateLimitResult struct {
	Class      OperationClass `json:"class"`
	Allowed    bool           `json:"allowed"`
	Limit      int            `json:"limit"`
	Remaining  int            `json:"remaining"`
	RetryAfter time.Duration  `json:"-"`
}

// RetryAfterMs is zero when the request was admitted.
func (r *RateLimitResult) RetryAfterMs() int64 {
	if r.Allowed {
		return 0
	}
	return r.RetryAfter.Milliseconds()
}
