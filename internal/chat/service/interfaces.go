package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"petchat/internal/chat/models"
	rlmodels "petchat/internal/ratelimit/models"
)

// Emitter writes one event to the chat server.
// Emit returns an unavailable domain error when the socket is down.
type Emitter interface {
	Emit(ctx context.Context, env *models.Envelope) error
}

// StatusReader reports whether the transport can send right now.
type StatusReader interface {
	IsConnected() bool
}

// Limits is the per-class admission control for one session.
type Limits interface {
	Allow(ctx context.Context, class rlmodels.OperationClass) (*rlmodels.RateLimitResult, error)
	// Release undoes the latest Allow for class when the admitted event never
	// reached the server.
	Release(ctx context.Context, class rlmodels.OperationClass) error
	Status(class rlmodels.OperationClass) (rlmodels.Status, error)
}
