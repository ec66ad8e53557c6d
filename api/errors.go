package api

import "errors"

var (
	// ErrNotFound is returned by Opener.Open when the name is unknown.
	ErrNotFound = errors.New("primitive not found")
	// ErrExists is returned by Opener.Create when a live primitive already
	// uses the name.
	ErrExists = errors.New("primitive already exists")
	// ErrNotOwner is returned by Release when the caller does not own the primitive.
	ErrNotOwner = errors.New("primitive not owned by caller")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("primitive handle closed")
	// ErrInvalidName is returned for names that cannot identify a primitive.
	ErrInvalidName = errors.New("invalid primitive name")
)
