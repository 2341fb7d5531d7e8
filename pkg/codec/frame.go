package codec

import (
	"encoding/binary"
	"time"
)

// Frame geometry on the bulk IN endpoint.
const (
	FrameSize   = 64
	HeaderSize  = 14
	PayloadSize = 50
)

// PacketType identifies what the firmware put in a frame.
type PacketType uint8

const (
	PacketBR        PacketType = 0 // Basic Rate symbols
	PacketLE        PacketType = 1 // BTLE packet
	PacketMessage   PacketType = 2 // firmware status text
	PacketKeepalive PacketType = 3
	PacketSpecan    PacketType = 4 // spectrum sweep sample
	PacketLEPromisc PacketType = 5 // BTLE captured in promiscuous mode
	PacketEgo       PacketType = 6 // Yuneec E-GO
)

func (t PacketType) String() string {
	switch t {
	case PacketBR:
		return "br"
	case PacketLE:
		return "le"
	case PacketMessage:
		return "message"
	case PacketKeepalive:
		return "keepalive"
	case PacketSpecan:
		return "specan"
	case PacketLEPromisc:
		return "le-promisc"
	case PacketEgo:
		return "ego"
	default:
		return "unknown"
	}
}

// Valid reports whether the firmware defines this packet type.
func (t PacketType) Valid() bool {
	return t <= PacketEgo
}

// Status byte flags set by the firmware DMA/radio path.
const (
	StatusDMAOverflow  = 0x01
	StatusDMAError     = 0x02
	StatusFIFOOverflow = 0x04
	StatusCSTrigger    = 0x08 // carrier sense triggered capture
	StatusRSSITrigger  = 0x10
	StatusDiscard      = 0x20 // firmware marked the frame invalid
)

// Header is the fixed 14-byte prefix of every bulk frame.
type Header struct {
	Type      PacketType
	Status    uint8
	Channel   uint8 // channel index at capture time
	ClkHigh   uint8 // upper bits extending Clk100ns
	Clk100ns  uint32
	RSSIMax   int8
	RSSIMin   int8
	RSSIAvg   int8
	RSSICount uint8
}

func parseHeader(frame [FrameSize]byte) Header {
	return Header{
		Type:      PacketType(frame[0]),
		Status:    frame[1],
		Channel:   frame[2],
		ClkHigh:   frame[3],
		Clk100ns:  binary.LittleEndian.Uint32(frame[4:8]),
		RSSIMax:   int8(frame[8]),
		RSSIMin:   int8(frame[9]),
		RSSIAvg:   int8(frame[10]),
		RSSICount: frame[11],
	}
}

// Timestamp returns the capture time as an offset from the device clock
// origin. The firmware counts 100 ns ticks in Clk100ns and carries the
// overflow in ClkHigh.
func (h Header) Timestamp() time.Duration {
	ticks := uint64(h.ClkHigh)<<32 | uint64(h.Clk100ns)
	return time.Duration(ticks) * 100 * time.Nanosecond
}

// Discard reports whether the firmware flagged the frame for disposal.
func (h Header) Discard() bool {
	return h.Status&StatusDiscard != 0
}

// Kind returns the packet type. Every decoded packet embeds Header, so
// this is what satisfies the Packet interface for all of them.
func (h Header) Kind() PacketType {
	return h.Type
}
