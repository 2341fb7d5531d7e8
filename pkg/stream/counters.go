package stream

import "sync/atomic"

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	// FramesReceived counts complete 64-byte frames read off the wire,
	// including any later evicted by queue overflow.
	FramesReceived uint64 `json:"frames_received"`
	// BytesReceived counts every byte the endpoint delivered, runts
	// included.
	BytesReceived uint64 `json:"bytes_received"`
	// Overflowed counts frames evicted because the consumer lagged.
	Overflowed uint64 `json:"overflowed"`
	// Truncated counts short transfers that were dropped undecoded.
	Truncated uint64 `json:"truncated"`
}

// counters is the hot-path accounting shared by all reader goroutines.
type counters struct {
	frames    atomic.Uint64
	bytes     atomic.Uint64
	overflow  atomic.Uint64
	truncated atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesReceived: c.frames.Load(),
		BytesReceived:  c.bytes.Load(),
		Overflowed:     c.overflow.Load(),
		Truncated:      c.truncated.Load(),
	}
}
