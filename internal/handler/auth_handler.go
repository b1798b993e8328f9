package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"urbansprout/internal/middleware"
	"urbansprout/internal/service/auth"
	"urbansprout/pkg/utils"
)

// AuthHandler authentication endpoints
type AuthHandler struct {
	authService auth.AuthService
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, utils.CodeInvalidParam, err.Error())
		return
	}

	utils.Success(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// Login user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters: "+err.Error())
		return
	}

	tokenResp, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		utils.Error(c, utils.CodeUnauthorized, err.Error())
		return
	}

	utils.Success(c, tokenResp)
}

// Logout user logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	token := strings.TrimPrefix(c.GetHeader(middleware.AuthorizationHeader), middleware.BearerPrefix)

	if err := h.authService.Logout(c.Request.Context(), userID, token); err != nil {
		utils.Error(c, utils.CodeInternalError, "logout failed")
		return
	}

	utils.Success(c, nil)
}

// RefreshToken refreshes an access token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters")
		return
	}

	tokenResp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.Error(c, utils.CodeUnauthorized, err.Error())
		return
	}

	utils.Success(c, tokenResp)
}
