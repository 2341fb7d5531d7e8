package ubertooth

import (
	"context"
	"time"
)

// Transport is the raw USB surface a Device drives: vendor control
// transfers on endpoint 0 and the bulk data endpoints. The gousb-backed
// implementation lives in usb.go; tests substitute an in-memory stub.
type Transport interface {
	// Control performs a vendor control transfer. rType is RequestTypeOut
	// or RequestTypeIn; request is the command opcode; data carries the
	// little-endian payload (out) or receives the response (in). Returns
	// the number of bytes transferred.
	Control(rType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)

	// BulkIn reads one transfer from the data-IN endpoint into buf,
	// blocking until completion, ctx cancellation or device loss.
	BulkIn(ctx context.Context, buf []byte) (int, error)

	// BulkOut writes data to the data-OUT endpoint.
	BulkOut(ctx context.Context, data []byte) (int, error)

	// Close releases the interface and the underlying handle. Idempotent.
	Close() error
}
