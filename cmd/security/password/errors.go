package password

import "errors"

var (
	ErrInvalidHash     = errors.New("password: invalid or unsupported hash")
	ErrPasswordTooLong = errors.New("password: too long")
	ErrEmptyPassword   = errors.New("password: empty")
)
