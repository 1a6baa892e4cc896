package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartchef/smartchef/internal/common"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "smartchef-backend"})
}

// AgentStatus reports readiness of the recipe generation pipeline.
func (h *Handler) AgentStatus(c *gin.Context) {
	status := "ready"
	if h.Recipes == nil || !h.Recipes.CheckHealth(c.Request.Context()) {
		status = "degraded"
	}
	common.OK(c, gin.H{
		"status": status,
		"agents": []string{"budget-chef", "luxury-chef", "router"},
	})
}
