package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// TokenService signs and validates owner tokens with HMAC-SHA256. The token
// subject is the owner id.
type TokenService struct {
	signingKey []byte
	lifetime   time.Duration
	clockSkew  time.Duration
	timeFunc   func() time.Time
}

// NewTokenService creates a token service. A zero lifetime issues tokens that never expire.
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	return &TokenService{
		signingKey: []byte(secret),
		lifetime:   lifetime,
		clockSkew:  2 * time.Minute,
		timeFunc:   time.Now,
	}, nil
}

// SetTimeFunc overrides the clock used for issuing and validating tokens.
func (s *TokenService) SetTimeFunc(fn func() time.Time) {
	s.timeFunc = fn
}

// Issue creates a signed token for owner and returns it with its expiry
// (zero when the token does not expire).
func (s *TokenService) Issue(owner string) (string, time.Time, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", time.Time{}, fmt.Errorf("owner is required")
	}

	now := s.timeFunc()
	claims := jwt.RegisteredClaims{
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.New().String(),
	}
	var expires time.Time
	if s.lifetime > 0 {
		expires = now.Add(s.lifetime)
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate checks the token signature and expiry and returns the owner.
func (s *TokenService) Validate(tokenString string) (string, error) {
	now := s.timeFunc()
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
