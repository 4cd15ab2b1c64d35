// Package hfail collects the sentinel errors that cross package and FFI
// boundaries in the HORUS runtime core. They map onto the error kinds in
// the runtime's error-handling design: Configuration errors are reported
// synchronously to the caller and never retried; FFI errors are signalled
// by return value and never abort the process.
package hfail

import "errors"

var (
	// ErrDuplicateNode is returned by Scheduler.Add when a node with the
	// same name is already registered.
	ErrDuplicateNode = errors.New("horus: duplicate node name")

	// ErrTopicShapeMismatch is returned when a topic already exists with a
	// different element size or capacity than requested.
	ErrTopicShapeMismatch = errors.New("horus: topic shape mismatch")

	// ErrPayloadSizeMismatch is returned by Publish when the payload length
	// differs from the topic's declared element size.
	ErrPayloadSizeMismatch = errors.New("horus: payload size mismatch")

	// ErrUnknownHandle is returned across the FFI boundary when a handle is
	// stale, forged, or out of range for the table it is looked up in. Each
	// handle kind has its own table, so a handle of another kind is only
	// rejected when its slot and generation do not resolve in that table.
	ErrUnknownHandle = errors.New("horus: unknown or stale handle")

	// ErrAlreadyRunning is returned by Scheduler.Add once the scheduler's
	// run loop has started; nodes may only be registered beforehand.
	ErrAlreadyRunning = errors.New("horus: scheduler already running")

	// ErrNodeNotFound is returned when an operation names a node that is
	// not registered with the scheduler.
	ErrNodeNotFound = errors.New("horus: node not found")
)
