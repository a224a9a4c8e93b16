package auth

import "errors"

var (
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrDuplicateUsername  = errors.New("auth: username already taken")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrIncorrectPassword  = errors.New("auth: old password is incorrect")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
)
