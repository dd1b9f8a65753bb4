package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"notekeeper/internal/bootstrap"
	"notekeeper/internal/mcp"
	"notekeeper/internal/transport/http/handler"
	"notekeeper/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	webhookHandler := handler.NewWebhookHandler(app.Machine)
	router.POST("/telegram/webhook",
		middleware.WebhookSecret(app.Config.Bot.WebhookSecret),
		webhookHandler.Receive,
	)

	mcpSrv := mcp.NewServer(app.Config.Bot.OwnerID, app.Records)
	mcpHTTP := mcpserver.NewStreamableHTTPServer(mcpSrv.Server())
	router.Any("/mcp", gin.WrapH(mcpHTTP))
	router.Any("/mcp/*path", gin.WrapH(http.StripPrefix("/mcp", mcpHTTP)))

	return router
}
