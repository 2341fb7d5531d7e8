package ubertooth

import "errors"

// Error taxonomy. Frame-level decode conditions (malformed frames, CRC
// mismatches) are recovered by counting and never surface through these.
var (
	// ErrDeviceNotFound indicates no attached device matched the known IDs
	ErrDeviceNotFound = errors.New("ubertooth device not found")

	// ErrPermissionDenied indicates the device exists but could not be opened
	ErrPermissionDenied = errors.New("permission denied opening device")

	// ErrAlreadyInUse indicates another handle owns the device
	ErrAlreadyInUse = errors.New("device already in use")

	// ErrNotConnected indicates an operation requires an open handle
	ErrNotConnected = errors.New("device not connected")

	// ErrTimeout indicates a command round-trip exceeded its deadline
	ErrTimeout = errors.New("command timed out")

	// ErrProtocol indicates a short, stalled or otherwise malformed transfer
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidParameter indicates input outside the command's valid range
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDeviceLost indicates the device disappeared mid-operation
	ErrDeviceLost = errors.New("device lost")
)
