package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"notekeeper/internal/bot"
	"notekeeper/internal/platform/telegram"
	"notekeeper/internal/transport/http/response"
)

type WebhookHandler struct {
	machine *bot.Machine
}

func NewWebhookHandler(machine *bot.Machine) *WebhookHandler {
	return &WebhookHandler{machine: machine}
}

// Receive handles one Telegram update. The machine never returns an error
// past its own boundary, so the webhook always acknowledges with 200;
// anything else would make Telegram redeliver the same update.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Printf("decode webhook update failed: %v", err)
		response.Error(c, 400, response.CodeBadRequest, "invalid update payload")
		return
	}

	h.machine.HandleUpdate(c.Request.Context(), &update)
	response.OK(c, nil)
}
