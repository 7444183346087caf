package domain

import "errors"

var (
	ErrAttemptNotFound   = errors.New("sync attempt not found")
	ErrAttemptFinalized  = errors.New("sync attempt already finalized")
	ErrInvalidTransition = errors.New("invalid sync status transition")
	ErrUserNotFound      = errors.New("user not found")
)
