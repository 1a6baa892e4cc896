package handlers

import (
	"context"

	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/config"
	"github.com/smartchef/smartchef/internal/store/rabbitmq"
)

// RecipeHealth reports whether the external recipe service is reachable.
type RecipeHealth interface {
	CheckHealth(ctx context.Context) bool
}

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
	Rabbit  *rabbitmq.Publisher
	Recipes RecipeHealth
}

func NewHandler(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, rabbit *rabbitmq.Publisher, recipes RecipeHealth) *Handler {
	return &Handler{DB: db, Cfg: cfg, ChatSvc: chatSvc, Rabbit: rabbit, Recipes: recipes}
}
