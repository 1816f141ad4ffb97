package members

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("member not found")

	// ErrInvalidCredentials covers unknown ids, inactive members, missing hashes and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
