package shared

import "errors"

// Sentinels shared by the auth and session layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCSRFTokenMissing means no token was issued or none was submitted.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch means the submitted token is not the session's.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
