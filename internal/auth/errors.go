package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords
	// alike, so a login response never reveals which one it was.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates a token that failed signature, expiry,
	// or claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
