package recon

import (
	"sync/atomic"

	"github.com/herlein/gotooth/pkg/codec"
)

// Sink receives a copy of every decoded packet during a run. Write is
// called from the run loop and must not block; implementations that fall
// behind should drop.
type Sink interface {
	Write(p codec.Packet)
}

// ChannelSink forwards packets to a buffered channel and drops when the
// consumer falls behind.
type ChannelSink struct {
	ch      chan codec.Packet
	dropped atomic.Uint64
}

func NewChannelSink(depth int) *ChannelSink {
	if depth <= 0 {
		depth = 256
	}
	return &ChannelSink{ch: make(chan codec.Packet, depth)}
}

// Packets is the consumer side of the sink.
func (s *ChannelSink) Packets() <-chan codec.Packet {
	return s.ch
}

func (s *ChannelSink) Write(p codec.Packet) {
	select {
	case s.ch <- p:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many packets were discarded on a full channel.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases the consumer side. Call it only after the run that
// writes to this sink has returned.
func (s *ChannelSink) Close() {
	close(s.ch)
}
