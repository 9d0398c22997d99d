package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"chatline/api/internal/models"
)

// Device metadata travels in headers so every auth entrypoint (login, QR
// generate) reads it the same way.
const (
	headerPlatform    = "X-Platform"
	headerDeviceID    = "X-Device-Id"
	headerDeviceModel = "X-Device-Model"
	headerLocation    = "X-Location"
)

// extractDeviceInfo builds device metadata from request headers, filling
// conservative defaults for anything the client omitted.
func extractDeviceInfo(c *gin.Context) models.DeviceInfo {
	info := models.DeviceInfo{
		Platform:   models.ParsePlatform(c.GetHeader(headerPlatform)),
		DeviceID:   c.GetHeader(headerDeviceID),
		DeviceName: c.GetHeader(headerDeviceModel),
		IPAddress:  c.ClientIP(),
		Location:   c.GetHeader(headerLocation),
	}

	if info.DeviceID == "" {
		info.DeviceID = fmt.Sprintf("device-%d", time.Now().UnixMilli())
	}
	if info.DeviceName == "" {
		if ua := c.GetHeader("User-Agent"); ua != "" {
			if len(ua) > 50 {
				ua = ua[:50]
			}
			info.DeviceName = "Browser - " + ua
		} else {
			info.DeviceName = "Unknown Device"
		}
	}
	if info.Location == "" {
		info.Location = "Unknown"
	}
	return info
}
