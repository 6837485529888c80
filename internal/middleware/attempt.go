package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/response"
	"github.com/stemsi/quizguard/internal/service"
)

// ContextKeyAttempt is the Gin context key for the verified attempt.
const ContextKeyAttempt = "attempt"

// AttemptVerifier resolves an attempt token to an in-progress attempt.
type AttemptVerifier interface {
	VerifyAttempt(ctx context.Context, attemptToken string) (*model.Attempt, error)
}

// RequireAttemptToken validates the attempt token from the Authorization
// header or the ?attempt= query param. WebSocket upgrades can only use the latter.
func RequireAttemptToken(v AttemptVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c.GetHeader("Authorization"))
		if tok == "" {
			tok = c.Query("attempt")
		}
		if tok == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrInvalidAttemptToken)
			return
		}

		attempt, err := v.VerifyAttempt(c.Request.Context(), tok)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.AbortFail(c, http.StatusConflict, response.ErrAlreadySubmitted)
			return
		case errors.Is(err, service.ErrInvalidAttemptToken):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrInvalidAttemptToken)
			return
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeyAttempt, attempt)
		c.Next()
	}
}

// GetAttempt retrieves the verified attempt from the Gin context.
func GetAttempt(c *gin.Context) *model.Attempt {
	val, exists := c.Get(ContextKeyAttempt)
	if !exists {
		return nil
	}
	a, _ := val.(*model.Attempt)
	return a
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
