package stream

import "errors"

var (
	// ErrSessionActive is returned by Start while a previous session on
	// the same engine is still running.
	ErrSessionActive = errors.New("stream session already active")

	// ErrPartialCancel is returned by Stop when the reader pool did not
	// drain within the grace period. The stragglers release themselves
	// once their transfers complete.
	ErrPartialCancel = errors.New("stream cancel incomplete")
)
