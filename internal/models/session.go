package models

import "time"

type Platform string

const (
	PlatformWeb     Platform = "WEB"
	PlatformMobile  Platform = "MOBILE"
	PlatformDesktop Platform = "DESKTOP"
	PlatformTablet  Platform = "TABLET"
)

// ParsePlatform normalizes a client-supplied platform string, falling back
// to WEB for anything it does not recognize.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformWeb, PlatformMobile, PlatformDesktop, PlatformTablet:
		return Platform(s)
	default:
		return PlatformWeb
	}
}

// DeviceSession is one logged-in device instance. At most one session per
// (user, platform) may have a nil LogoutTime.
type DeviceSession struct {
	ID             string
	UserID         string
	Platform       Platform
	DeviceID       string
	DeviceName     string
	IPAddress      string
	Location       string
	LoginTime      time.Time
	LastActiveTime time.Time
	LogoutTime     *time.Time
}

func (s DeviceSession) Active() bool {
	return s.LogoutTime == nil
}

// DeviceInfo is the client-described device metadata attached to a login.
type DeviceInfo struct {
	Platform   Platform
	DeviceID   string
	DeviceName string
	IPAddress  string
	Location   string
}
