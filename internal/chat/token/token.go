// Package token mints and verifies the HS256 bearer tokens the chat socket
// handshake expects. Minting is a development helper; production tokens come
// from the platform's auth service.
package token

import (
	"errors"
	"strings"
	"time"

	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/clock"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped on every minted token and required on parse.
const Issuer = "petchat"

// Claims carries the user identity the socket server reads from the handshake.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Service handles token creation and validation.
type Service struct {
	signingKey []byte
	tokenTTL   time.Duration
	clock      clock.Clock
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(signingKey string, tokenTTL time.Duration, opts ...Option) (*Service, error) {
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key is required")
	}
	if tokenTTL <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token ttl must be positive")
	}
	s := &Service{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		clock:      clock.System,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mint signs a token for userID valid for the configured TTL.
func (s *Service) Mint(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	now := s.clock.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := t.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (s *Service) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token signature")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token parse failed")
		}
	}
	if claims.UserID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no user id")
	}
	return claims, nil
}

// BearerHeader formats tok for an Authorization header.
func BearerHeader(tok string) string {
	return "Bearer " + tok
}
