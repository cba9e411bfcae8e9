package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrClosed        = errors.New("store closed")
	ErrCommit        = errors.New("commit failed")
	ErrUnknownDriver = errors.New("unknown store driver")
)
