// Package codec decodes the 64-byte frames the device pushes over its bulk
// endpoint into typed packets.
package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// Decode failure modes.
var (
	ErrMalformed  = errors.New("malformed frame")
	ErrCRCInvalid = errors.New("crc check failed")
)

// Packet is any decoded frame variant. Every variant embeds Header, so
// the capture metadata is always reachable through the concrete type.
type Packet interface {
	Kind() PacketType
}

// BRPacket carries raw Basic Rate symbol data.
type BRPacket struct {
	Header
	Symbols []byte
	RSSI    Stats
}

// MessagePacket carries firmware status text and keepalives.
type MessagePacket struct {
	Header
	Text string
}

// RawPacket carries frame types passed through undecoded.
type RawPacket struct {
	Header
	Payload []byte
}

// Config controls decoding.
type Config struct {
	// VerifyCRC drops BTLE packets whose CRC check fails. When false the
	// packets are surfaced with CRCValid unset instead.
	VerifyCRC bool `json:"verify_crc"`

	// CRCInit seeds the CRC for data-channel access addresses.
	// Advertising traffic always seeds with AdvCRCInit.
	CRCInit uint32 `json:"crc_init"`

	// SpecanLowMHz is the low edge of the sweep range that a spectrum
	// frame's channel field is relative to.
	SpecanLowMHz uint16 `json:"specan_low_mhz"`
}

// DefaultConfig returns decode settings for advertising-channel capture.
func DefaultConfig() Config {
	return Config{
		VerifyCRC:    true,
		CRCInit:      AdvCRCInit,
		SpecanLowMHz: 2402,
	}
}

// Counters tallies decode outcomes.
type Counters struct {
	Decoded    uint64 `json:"decoded"`
	Malformed  uint64 `json:"malformed"`
	CRCInvalid uint64 `json:"crc_invalid"`
}

// Decoder turns raw frames into packets. It is not safe for concurrent
// use; run one per stream session.
type Decoder struct {
	cfg      Config
	counters Counters
}

func NewDecoder(cfg Config) *Decoder {
	return &Decoder{cfg: cfg}
}

// Counters returns a snapshot of the decode tallies.
func (d *Decoder) Counters() Counters {
	return d.counters
}

// Decode parses one frame. Every input yields either a typed packet or an
// error; malformed frames and failed CRC checks are counted.
func (d *Decoder) Decode(frame [FrameSize]byte) (Packet, error) {
	h := parseHeader(frame)
	if !h.Type.Valid() {
		d.counters.Malformed++
		return nil, fmt.Errorf("%w: unknown type 0x%02x", ErrMalformed, uint8(h.Type))
	}
	if h.Discard() {
		d.counters.Malformed++
		return nil, fmt.Errorf("%w: discard flag set", ErrMalformed)
	}
	payload := frame[HeaderSize:]

	switch h.Type {
	case PacketLE, PacketLEPromisc:
		p, err := parseBLE(h, payload, d.cfg.CRCInit)
		if err != nil {
			d.counters.Malformed++
			return nil, err
		}
		p.Promiscuous = h.Type == PacketLEPromisc
		if !p.CRCValid {
			d.counters.CRCInvalid++
			if d.cfg.VerifyCRC {
				return nil, fmt.Errorf("%w: access address 0x%08x", ErrCRCInvalid, p.AccessAddress)
			}
		}
		d.counters.Decoded++
		return p, nil
	case PacketSpecan:
		d.counters.Decoded++
		return parseSpecan(h, d.cfg.SpecanLowMHz), nil
	case PacketMessage, PacketKeepalive:
		d.counters.Decoded++
		return &MessagePacket{Header: h, Text: messageText(payload)}, nil
	case PacketBR:
		d.counters.Decoded++
		return &BRPacket{
			Header:  h,
			Symbols: append([]byte(nil), payload...),
			RSSI:    StatsFromHeader(h),
		}, nil
	default: // PacketEgo
		d.counters.Decoded++
		return &RawPacket{Header: h, Payload: append([]byte(nil), payload...)}, nil
	}
}

// messageText reads the firmware's null-terminated status strings.
func messageText(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}
