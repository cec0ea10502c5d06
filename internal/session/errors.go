// ABOUTME: Error taxonomy for the session protocol loop
// ABOUTME: Sentinels are wrapped with context and matched with errors.Is
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed covers dial, auth and handshake failures. Fatal to the session.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrProtocolViolation marks a malformed frame. The frame is dropped.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrFormatUnsupported marks a stream/start the player cannot decode. The segment is ignored.
	ErrFormatUnsupported = errors.New("unsupported audio format")

	// ErrCommandRejected is returned synchronously when a command cannot be queued
	ErrCommandRejected = errors.New("command rejected")

	// ErrNotConnected rejects commands outside the Connected state
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrCommandRejected)

	// ErrQueueFull rejects commands when the outbound queue has no room
	ErrQueueFull = fmt.Errorf("%w: command queue full", ErrCommandRejected)
)

// Per-frame violations, each wrapping ErrProtocolViolation
var (
	errNoFormat     = fmt.Errorf("%w: audio before stream/start", ErrProtocolViolation)
	errPartialFrame = fmt.Errorf("%w: payload is not a whole number of frames", ErrProtocolViolation)
)
