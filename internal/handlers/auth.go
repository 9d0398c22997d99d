package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatline/api/internal/middleware"
	"chatline/api/internal/models"
	"chatline/api/internal/service"
)

type loginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	AccessToken   string       `json:"accessToken"`
	AccessExpiry  time.Time    `json:"accessExpiry"`
	RefreshToken  string       `json:"refreshToken"`
	RefreshExpiry time.Time    `json:"refreshExpiry"`
	SessionID     string       `json:"sessionId"`
	User          userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Phone:    req.Phone,
		Password: req.Password,
		Device:   extractDeviceInfo(c),
	})
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, service.ErrUserSuspended) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("refresh rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h HandlerSet) Logout(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.sessionService.Logout(c.Request.Context(), identity.SessionID, models.RevokeReasonManualLogout); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    identity.UserID,
		"sessionId": identity.SessionID,
	})
}

func newAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		AccessToken:   result.AccessToken,
		AccessExpiry:  result.AccessExpiry,
		RefreshToken:  result.RefreshToken,
		RefreshExpiry: result.RefreshExpiry,
		SessionID:     result.SessionID,
		User: userResponse{
			ID:          result.User.ID,
			Phone:       result.User.Phone,
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
			Status:      string(result.User.Status),
		},
	}
}
