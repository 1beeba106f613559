package service

import (
	"errors"
	"fmt"
	"time"

	rlmodels "petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
)

// RateLimitedError is returned when a limiter refuses an operation. It
// carries the cooldown the caller should show before retrying, and matches
// dErrors.CodeRateLimited.
type RateLimitedError struct {
	Class      rlmodels.OperationClass
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, retry in %dms", e.Class, e.RetryAfter.Milliseconds())
}

func (e *RateLimitedError) Unwrap() error {
	return dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded")
}

func newRateLimitedError(result *rlmodels.RateLimitResult) error {
	return &RateLimitedError{Class: result.Class, RetryAfter: result.RetryAfter}
}

// RetryAfter extracts the cooldown from a rate limited error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
