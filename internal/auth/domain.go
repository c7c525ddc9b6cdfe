package auth

import "time"

// User represents the credentials of a staff account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
