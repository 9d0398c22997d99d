package models

import "time"

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusPending   UserStatus = "pending"
)

type User struct {
	ID           string
	Phone        string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Status       UserStatus
	AvatarURL    *string
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
