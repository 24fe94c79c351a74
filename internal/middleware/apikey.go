package middleware

import (
	"ibisync/internal/repository"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards the routes the entity services (inbound, outbound,
// production, stock mutation) call to push work into the queue.
func APIKeyMiddleware(repo repository.ClientRepository, bypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bypass {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-Ibis-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing API key"})
			return
		}

		ok, err := repo.ValidateAPIKey(c.Request.Context(), apiKey)
		if err != nil || !ok {
			c.AbortWithStatusJSON(403, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
