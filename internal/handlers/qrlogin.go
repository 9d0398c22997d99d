package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatline/api/internal/middleware"
	"chatline/api/internal/service"
)

type qrGenerateResponse struct {
	SessionToken string    `json:"sessionToken"`
	QrPayload    string    `json:"qrPayload"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (h HandlerSet) QrGenerate(c *gin.Context) {
	result, err := h.qrService.Generate(c.Request.Context(), extractDeviceInfo(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr generate failed"})
		return
	}

	c.JSON(http.StatusOK, qrGenerateResponse{
		SessionToken: result.SessionToken,
		QrPayload:    result.QrPayload,
		Status:       string(result.Status),
		ExpiresAt:    result.ExpiresAt,
	})
}

type qrScanRequest struct {
	SessionToken string `json:"sessionToken" binding:"required"`
}

func (h HandlerSet) QrScan(c *gin.Context) {
	var req qrScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.qrService.Scan(c.Request.Context(), req.SessionToken)
	if err != nil {
		h.qrError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionToken": session.SessionToken,
		"deviceName":   session.DeviceName,
		"platform":     string(session.Platform),
		"status":       string(session.Status),
	})
}

type qrConfirmRequest struct {
	SessionToken string `json:"sessionToken" binding:"required"`
	Action       string `json:"action" binding:"required,oneof=confirm reject"`
}

func (h HandlerSet) QrConfirm(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req qrConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.qrService.Confirm(c.Request.Context(), req.SessionToken, identity.UserID, service.QrAction(req.Action))
	if err != nil {
		h.qrError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionToken": req.SessionToken,
		"status":       string(status),
	})
}

func (h HandlerSet) QrStatus(c *gin.Context) {
	sessionToken := c.Param("sessionToken")
	if sessionToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionToken required"})
		return
	}

	result, err := h.qrService.Poll(c.Request.Context(), sessionToken, c.ClientIP())
	if err != nil {
		h.qrError(c, err)
		return
	}

	resp := gin.H{
		"sessionToken": sessionToken,
		"status":       string(result.Status),
	}
	if result.Auth != nil {
		resp["loginData"] = newAuthResponse(*result.Auth)
	}

	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) qrError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "qr session not found"})
	case errors.Is(err, service.ErrQrExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "qr session expired"})
	case errors.Is(err, service.ErrInvalidQrState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid qr state"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr operation failed"})
	}
}
