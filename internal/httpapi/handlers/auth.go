package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/auth"
	"github.com/smartchef/smartchef/internal/common"
	"github.com/smartchef/smartchef/internal/httpapi/middleware"
	"github.com/smartchef/smartchef/internal/models"
)

const tokenTTL = 7 * 24 * time.Hour

func userPayload(u *models.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "email": u.Email}
}

type signupReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "name, email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{Name: req.Name, Email: req.Email, PasswordHash: hash}
	if err := h.DB.Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "user already exists")
		return
	}

	token, err := auth.SignJWT(user.ID, user.Email, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{"token": token, "user": userPayload(&user)})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "email and password are required")
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		// Same response for unknown email and wrong password.
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(user.ID, user.Email, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{"token": token, "user": userPayload(&user)})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := c.Get(middleware.UserIDKey)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"user": userPayload(&user)})
}
