package models

import "time"

type QrLoginStatus string

const (
	QrStatusPending   QrLoginStatus = "PENDING"
	QrStatusScanned   QrLoginStatus = "SCANNED"
	QrStatusConfirmed QrLoginStatus = "CONFIRMED"
	QrStatusRejected  QrLoginStatus = "REJECTED"
	QrStatusExpired   QrLoginStatus = "EXPIRED"
	QrStatusUsed      QrLoginStatus = "USED"
)

// QrLoginSession tracks one QR cross-device login handshake. SessionToken is
// an unguessable opaque value; UserID stays empty until a confirming user
// binds themselves to the handshake.
type QrLoginSession struct {
	ID           string
	SessionToken string
	DeviceID     string
	DeviceName   string
	Platform     Platform
	UserID       string
	Status       QrLoginStatus
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ConfirmedAt  *time.Time
}

func (q QrLoginSession) ExpiredAt(now time.Time) bool {
	return now.After(q.ExpiresAt)
}
