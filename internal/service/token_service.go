package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AttemptClaims is the payload of an attempt token. Subject is the attempt
// UUID; Invitation links back to the share token the attempt was opened with.
type AttemptClaims struct {
	jwt.RegisteredClaims
	Invitation string `json:"inv"`
}

// AttemptUUID parses the subject.
func (c *AttemptClaims) AttemptUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService signs and verifies attempt tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService using an HMAC secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Issue signs a token for attemptID valid until expiresAt.
func (s *TokenService) Issue(attemptID uuid.UUID, invitation string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := &AttemptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   attemptID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Invitation: invitation,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates an attempt token and returns its claims.
func (s *TokenService) Parse(tokenStr string) (*AttemptClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AttemptClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*AttemptClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, err := claims.AttemptUUID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return claims, nil
}
