package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizguard/internal/response"
)

// RequireMonitorKey guards proctor endpoints with a shared key, sent as a
// bearer token or as ?key= for EventSource clients that cannot set headers.
func RequireMonitorKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			response.AbortFail(c, http.StatusNotFound, response.ErrMonitorDisabled)
			return
		}

		got := bearer(c.GetHeader("Authorization"))
		if got == "" {
			got = c.Query("key")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
