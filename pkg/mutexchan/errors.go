package mutexchan

import "errors"

var (
	// ErrChannelCreation is returned when the Sender cannot create the primitive.
	ErrChannelCreation = errors.New("mutexchan: channel creation failed")
	// ErrChannelNotFound is returned when the Receiver gives up waiting for
	// the primitive to appear.
	ErrChannelNotFound = errors.New("mutexchan: channel not found")
	// ErrAllocation is returned when the received payload outgrows the buffer limit.
	ErrAllocation = errors.New("mutexchan: payload buffer limit exceeded")
	// ErrPeerTimeout is returned when no Receiver shows up within the probe timeout.
	ErrPeerTimeout = errors.New("mutexchan: peer did not appear")
	// ErrWrongRole is returned when a session is used against its role.
	ErrWrongRole = errors.New("mutexchan: operation not valid for role")
	// ErrInvalidConfig is returned by VerifyConfig.
	ErrInvalidConfig = errors.New("mutexchan: invalid config")
	// ErrSessionUsed is returned when a session is run twice.
	ErrSessionUsed = errors.New("mutexchan: session already used")
)
