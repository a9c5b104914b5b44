package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrPhoneAlreadyExists = errors.New("phone already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("user account inactive")

	// Token related errors
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrTokenExpired      = errors.New("refresh token expired")
	ErrTokenReuse        = errors.New("refresh token reuse detected")
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingToken      = errors.New("missing token")
	ErrInvalidTokenForm  = errors.New("invalid token format")
	ErrAccessTokenExpiry = errors.New("access token expired")

	// Throttling
	ErrRateLimited = errors.New("rate limit exceeded")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
