package models

import (
	"strings"

	dErrors "petchat/pkg/domain-errors"
)

// ResetRateLimitRequest clears one class, or every class when All is set.
type ResetRateLimitRequest struct {
	Class string `json:"class,omitempty"`
	All   bool   `json:"all,omitempty"`
}

func (r *ResetRateLimitRequest) Normalize() {
	if r == nil {
		return
	}
	r.Class = strings.TrimSpace(strings.ToLower(r.Class))
}

func (r *ResetRateLimitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.Normalize()
	if r.All {
		if r.Class != "" {
			return dErrors.New(dErrors.CodeValidation, "class must be empty when all is set")
		}
		return nil
	}
	if r.Class == "" {
		return dErrors.New(dErrors.CodeValidation, "class is required")
	}
	if !OperationClass(r.Class).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "class must be 'message', 'typing' or 'join'")
	}
	return nil
}
