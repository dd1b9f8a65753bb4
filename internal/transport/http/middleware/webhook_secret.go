package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"notekeeper/internal/transport/http/response"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret rejects webhook calls that do not carry the secret token
// registered with setWebhook. An empty configured secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		got := c.GetHeader(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Error(c, 401, response.CodeUnauthorized, "invalid webhook secret")
			c.Abort()
			return
		}
		c.Next()
	}
}
