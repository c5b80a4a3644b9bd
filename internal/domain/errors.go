package domain

import "errors"

var (
	ErrDoesNotExist            = errors.New("matching object does not exist")
	ErrMultipleObjectsReturned = errors.New("get returned more than one object")
	ErrUnsupportedLookup       = errors.New("unsupported field lookup")
	ErrConflict                = errors.New("document is locked by another token")
	ErrInvalidLock             = errors.New("lock token does not match")
	ErrNotLocked               = errors.New("document is not locked")
	ErrUnknownField            = errors.New("unknown field")
)
