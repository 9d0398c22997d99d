package service

import "errors"

// Credential and handshake failures are all recoverable: callers branch on
// the kind and answer with a rejection, never a crash. The gate collapses
// every one of them into a bare 401 so the reason never leaks to the caller.
var (
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrExpiredCredential   = errors.New("expired credential")
	ErrRevokedCredential   = errors.New("revoked credential")
	ErrSessionNotFound     = errors.New("session not found")
	ErrExpiredRefreshToken = errors.New("expired refresh token")
	ErrReusedRefreshToken  = errors.New("refresh token reuse detected")
	ErrInvalidQrState      = errors.New("invalid qr state")
	ErrQrExpired           = errors.New("qr session expired")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUserSuspended       = errors.New("user suspended")
)
