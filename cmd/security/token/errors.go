package token

import "errors"

var (
	ErrKeyMissing   = errors.New("token: signing key missing")
	ErrKeyTooShort  = errors.New("token: signing key too short")
	ErrBadSignature = errors.New("token: bad signature")
)
