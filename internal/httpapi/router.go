package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/common"
	"github.com/smartchef/smartchef/internal/config"
	"github.com/smartchef/smartchef/internal/httpapi/handlers"
	"github.com/smartchef/smartchef/internal/httpapi/middleware"
	"github.com/smartchef/smartchef/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, rabbit *rabbitmq.Publisher, recipes handlers.RecipeHealth) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, chatSvc, rabbit, recipes)

	r.GET("/health", h.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", middleware.AuthRequired(cfg.JWTSecret), h.Me)

	chatGroup := api.Group("/chat")
	chatGroup.POST("/session", h.CreateChatSession)
	chatGroup.POST("/message", h.SendChatMessage)
	chatGroup.POST("/message/async", h.SendChatMessageAsync)
	chatGroup.GET("/jobs/:job_id", h.GetChatJob)
	chatGroup.GET("/history/:session_id", h.GetChatHistory)
	chatGroup.POST("/stream", h.StreamChatMessage)

	api.POST("/recipes/parse", h.ParseRecipe)

	api.GET("/agent/status", h.AgentStatus)

	return r
}
