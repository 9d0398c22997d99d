package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatline/api/internal/middleware"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
	"chatline/api/internal/service"
)

type sessionResponse struct {
	SessionID        string     `json:"sessionId"`
	Platform         string     `json:"platform"`
	DeviceID         string     `json:"deviceId"`
	DeviceName       string     `json:"deviceName"`
	IPAddress        string     `json:"ipAddress"`
	Location         string     `json:"location"`
	LoginTime        time.Time  `json:"loginTime"`
	LastActiveTime   time.Time  `json:"lastActiveTime"`
	LogoutTime       *time.Time `json:"logoutTime,omitempty"`
	IsCurrentSession bool       `json:"isCurrentSession"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	filter := repository.SessionFilter(c.DefaultQuery("status", string(repository.SessionFilterActive)))
	switch filter {
	case repository.SessionFilterActive, repository.SessionFilterLoggedOut, repository.SessionFilterAll:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), identity.UserID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse{
			SessionID:        session.ID,
			Platform:         string(session.Platform),
			DeviceID:         session.DeviceID,
			DeviceName:       session.DeviceName,
			IPAddress:        session.IPAddress,
			Location:         session.Location,
			LoginTime:        session.LoginTime,
			LastActiveTime:   session.LastActiveTime,
			LogoutTime:       session.LogoutTime,
			IsCurrentSession: session.ID == identity.SessionID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

// LogoutSession revokes one of the caller's own sessions.
func (h HandlerSet) LogoutSession(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId required"})
		return
	}

	target, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	if target.UserID != identity.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	reason := models.RevokeReasonSessionKick
	if sessionID == identity.SessionID {
		reason = models.RevokeReasonManualLogout
	}

	if err := h.sessionService.Logout(c.Request.Context(), sessionID, reason); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAllOthers revokes every session of the caller except the current one.
func (h HandlerSet) LogoutAllOthers(c *gin.Context) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	count, err := h.sessionService.LogoutAll(c.Request.Context(), identity.UserID, identity.SessionID, models.RevokeReasonSessionKick)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loggedOut": count})
}
