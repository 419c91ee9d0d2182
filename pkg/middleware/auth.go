package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyGate is the authentication gate named in spec §6: a thin
// stand-in that checks a single configured service API key against
// either a Bearer Authorization header or an X-Api-Key header. The
// core assumes the request is already authenticated; this is not a
// full auth system.
func APIKeyGate(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		supplied := c.GetHeader("X-Api-Key")
		if supplied == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				supplied = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
