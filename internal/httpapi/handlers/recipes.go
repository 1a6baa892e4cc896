package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartchef/smartchef/internal/common"
	"github.com/smartchef/smartchef/internal/recipemd"
)

type parseRecipeReq struct {
	Markdown string `json:"markdown" binding:"required"`
	Tier     string `json:"tier"`
}

// ParseRecipe computes the structured view of a recipe markdown document.
// Clients that rendered a recipe from the chat stream call this to get
// ingredients, steps and timings without re-parsing on their side.
func (h *Handler) ParseRecipe(c *gin.Context) {
	var req parseRecipeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "markdown is required")
		return
	}

	tier := recipemd.TierBudget
	if req.Tier == string(recipemd.TierLuxury) {
		tier = recipemd.TierLuxury
	}

	common.OK(c, gin.H{"recipe": recipemd.Parse(req.Markdown, tier)})
}
