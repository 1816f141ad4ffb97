package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports malformed input: a bad user id, an empty id list,
	// an inverted range or a store call with missing fields.
	ErrValidation = errors.New("validation failed")

	ErrAlreadySignedIn = errors.New("user already signed in")
	ErrNotSignedIn     = errors.New("user not signed in")
	ErrNotFound        = errors.New("not found")

	// ErrDuplicateSignIn is returned by stores when an open record already exists for the user.
	// Service callers never see it; it is translated to ErrAlreadySignedIn.
	ErrDuplicateSignIn = errors.New("duplicate open attendance record")
)

// OpError wraps a sentinel Kind with the operation that produced it and an
// optional human readable Msg.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e *OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return &OpError{Op: op, Kind: kind, Msg: msg}
}

func invalid(op, msg string) error {
	return opErr(op, ErrValidation, msg)
}

// IsValidation reports whether err is, or wraps, ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
