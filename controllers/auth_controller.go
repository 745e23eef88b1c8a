package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/kendall-kelly/portfolio-chat-api/services"
)

// LoginRequest represents the request body for admin login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login - exchanges admin credentials for a bearer token
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	result, err := services.GetAuthService().Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		errorResponse(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
		return
	case errors.Is(err, services.ErrLoginDisabled):
		errorResponse(c, http.StatusNotFound, "LOGIN_DISABLED", "Local login is disabled", nil)
		return
	case err != nil:
		logging.FromContext(c.Request.Context()).Error("login failed", logging.Err(err))
		errorResponse(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to log in", nil)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"access_token": result.Token,
		"expires_at":   result.ExpiresAt,
		"user": gin.H{
			"username": result.Username,
			"role":     result.Role,
		},
	})
}
