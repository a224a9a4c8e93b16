package domain

import "time"

// User represents an account that owns expenses.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
