package storage

import (
	"errors"
	"fmt"
)

var (
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Unavailable wraps an infrastructure-level failure so callers can match
// ErrStoreUnavailable while the cause stays in the message.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
