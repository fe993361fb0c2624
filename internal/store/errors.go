package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTokenSuperseded is returned when a conditional refresh-token update
// matches no row: the stored token no longer equals the one being rotated.
var ErrTokenSuperseded = errors.New("refresh token superseded")
