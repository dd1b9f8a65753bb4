package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newSecretRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", WebhookSecret(secret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestWebhookSecretAccepted(t *testing.T) {
	router := newSecretRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookSecretRejected(t *testing.T) {
	router := newSecretRouter("s3cret")

	for _, token := range []string{"", "wrong", "S3CRET"} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		if token != "" {
			req.Header.Set("X-Telegram-Bot-Api-Secret-Token", token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "token=%q", token)
	}
}

func TestWebhookSecretDisabledWhenUnset(t *testing.T) {
	router := newSecretRouter("")

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
