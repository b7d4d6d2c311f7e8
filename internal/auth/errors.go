package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrForbidden          = errors.New("auth: forbidden")

	// Token validation failures are terminal per request; callers never retry.
	ErrTokenMalformed   = errors.New("auth: token malformed")
	ErrInvalidSignature = errors.New("auth: token signature invalid")
	ErrTokenExpired     = errors.New("auth: token expired")
)
