package codec

import (
	"encoding/binary"
	"fmt"
	"net"

	uuid "github.com/satori/go.uuid"
)

// Advertising channel constants.
const (
	AdvAccessAddress uint32 = 0x8E89BED6
	AdvCRCInit       uint32 = 0x555555
)

// Advertising PDU types.
const (
	PDUAdvInd        = 0x0
	PDUAdvDirectInd  = 0x1
	PDUAdvNonconnInd = 0x2
	PDUScanReq       = 0x3
	PDUScanRsp       = 0x4
	PDUConnectReq    = 0x5
	PDUAdvScanInd    = 0x6
)

// PDUTypeName returns the standard name of an advertising PDU type.
func PDUTypeName(t uint8) string {
	switch t {
	case PDUAdvInd:
		return "ADV_IND"
	case PDUAdvDirectInd:
		return "ADV_DIRECT_IND"
	case PDUAdvNonconnInd:
		return "ADV_NONCONN_IND"
	case PDUScanReq:
		return "SCAN_REQ"
	case PDUScanRsp:
		return "SCAN_RSP"
	case PDUConnectReq:
		return "CONNECT_REQ"
	case PDUAdvScanInd:
		return "ADV_SCAN_IND"
	default:
		return fmt.Sprintf("RESERVED_%d", t)
	}
}

// AddressType distinguishes public from random device addresses.
type AddressType uint8

const (
	AddressPublic AddressType = 0
	AddressRandom AddressType = 1
)

func (a AddressType) String() string {
	if a == AddressRandom {
		return "random"
	}
	return "public"
}

// Advertisement holds the AD structures recovered from an advertising
// payload. Pointer fields are nil when the element was absent.
type Advertisement struct {
	Flags        *uint8
	LocalName    string
	NameComplete bool
	TxPower      *int8
	Services16   []uint16
	Services128  []uuid.UUID
	Manufacturer []byte
}

// BLEPacket is a decoded BTLE advertising-channel packet.
type BLEPacket struct {
	Header
	AccessAddress uint32
	PDUType       uint8
	TxAdd         bool
	RxAdd         bool
	Length        uint8
	Advertiser    net.HardwareAddr
	AddressType   AddressType
	Data          []byte
	CRC           uint32
	CRCValid      bool
	Promiscuous   bool
	Adv           *Advertisement
	RSSI          Stats
}

// AD element types we recover.
const (
	adFlags           = 0x01
	adUUID16More      = 0x02
	adUUID16Complete  = 0x03
	adUUID128More     = 0x06
	adUUID128Complete = 0x07
	adNameShort       = 0x08
	adNameComplete    = 0x09
	adTxPower         = 0x0A
	adManufacturer    = 0xFF
)

// parseBLE decodes a BTLE frame payload: AA(4 LE), PDU header, length,
// advertising payload, 3-byte CRC. crcInit seeds the CRC for data-channel
// access addresses; advertising packets always seed with AdvCRCInit.
func parseBLE(h Header, payload []byte, crcInit uint32) (*BLEPacket, error) {
	if len(payload) < 9 {
		return nil, fmt.Errorf("%w: ble frame shorter than minimum", ErrMalformed)
	}
	aa := binary.LittleEndian.Uint32(payload[0:4])
	pduHeader := payload[4]
	length := int(payload[5])
	if 6+length+3 > len(payload) {
		return nil, fmt.Errorf("%w: ble pdu length %d exceeds frame", ErrMalformed, length)
	}

	pdu := payload[4 : 6+length] // CRC covers header, length and payload
	data := payload[6 : 6+length]
	crc := uint32(payload[6+length]) |
		uint32(payload[7+length])<<8 |
		uint32(payload[8+length])<<16

	init := crcInit
	if aa == AdvAccessAddress {
		init = AdvCRCInit
	}

	p := &BLEPacket{
		Header:        h,
		AccessAddress: aa,
		PDUType:       pduHeader & 0x0F,
		TxAdd:         pduHeader&0x40 != 0,
		RxAdd:         pduHeader&0x80 != 0,
		Length:        uint8(length),
		Data:          append([]byte(nil), data...),
		CRC:           crc,
		CRCValid:      crc24(init, pdu) == crc,
		RSSI:          StatsFromHeader(h),
	}

	// Advertising PDUs lead with the device address, transmitted
	// least-significant byte first.
	if p.PDUType <= PDUAdvScanInd && len(data) >= 6 {
		addr := make(net.HardwareAddr, 6)
		for i := 0; i < 6; i++ {
			addr[i] = data[5-i]
		}
		p.Advertiser = addr
		if p.TxAdd {
			p.AddressType = AddressRandom
		}
	}

	switch p.PDUType {
	case PDUAdvInd, PDUAdvNonconnInd, PDUScanRsp, PDUAdvScanInd:
		if len(data) > 6 {
			adv := parseAD(data[6:])
			p.Adv = &adv
		}
	}
	return p, nil
}

// parseAD walks the AD structures of an advertising payload. Each element
// is a length byte followed by a type byte and value. A zero length or a
// truncated element ends the walk without error.
func parseAD(data []byte) Advertisement {
	var ad Advertisement
	for off := 0; off < len(data); {
		length := int(data[off])
		if length == 0 || off+1+length > len(data) {
			break
		}
		typ := data[off+1]
		val := data[off+2 : off+1+length]
		switch typ {
		case adFlags:
			if len(val) >= 1 {
				v := val[0]
				ad.Flags = &v
			}
		case adUUID16More, adUUID16Complete:
			for i := 0; i+1 < len(val); i += 2 {
				ad.Services16 = append(ad.Services16, binary.LittleEndian.Uint16(val[i:]))
			}
		case adUUID128More, adUUID128Complete:
			for i := 0; i+15 < len(val); i += 16 {
				rev := make([]byte, 16)
				for j := 0; j < 16; j++ {
					rev[j] = val[i+15-j]
				}
				if u, err := uuid.FromBytes(rev); err == nil {
					ad.Services128 = append(ad.Services128, u)
				}
			}
		case adNameShort:
			if !ad.NameComplete {
				ad.LocalName = string(val)
			}
		case adNameComplete:
			ad.LocalName = string(val)
			ad.NameComplete = true
		case adTxPower:
			if len(val) >= 1 {
				v := int8(val[0])
				ad.TxPower = &v
			}
		case adManufacturer:
			ad.Manufacturer = append([]byte(nil), val...)
		}
		off += 1 + length
	}
	return ad
}

// crc24 runs the BTLE CRC LFSR (polynomial 0x00065B) over data, feeding
// each byte least-significant bit first.
func crc24(init uint32, data []byte) uint32 {
	state := init & 0xffffff
	for _, b := range data {
		cur := uint32(b)
		for i := 0; i < 8; i++ {
			next := (state ^ cur) & 1
			cur >>= 1
			state >>= 1
			if next != 0 {
				state |= 1 << 23
				state ^= 0x5a6000
			}
		}
	}
	return state
}
