package codec

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// buildFrame lays out a wire frame from header fields and payload.
func buildFrame(h Header, payload []byte) [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = byte(h.Type)
	f[1] = h.Status
	f[2] = h.Channel
	f[3] = h.ClkHigh
	binary.LittleEndian.PutUint32(f[4:8], h.Clk100ns)
	f[8] = byte(h.RSSIMax)
	f[9] = byte(h.RSSIMin)
	f[10] = byte(h.RSSIAvg)
	f[11] = h.RSSICount
	copy(f[HeaderSize:], payload)
	return f
}

// buildBLEPayload assembles AA, PDU header, length, data and a CRC that
// is either correct or corrupted by one bit.
func buildBLEPayload(aa uint32, pduHeader uint8, data []byte, goodCRC bool) []byte {
	p := make([]byte, 0, 9+len(data))
	var aaBytes [4]byte
	binary.LittleEndian.PutUint32(aaBytes[:], aa)
	p = append(p, aaBytes[:]...)
	p = append(p, pduHeader, byte(len(data)))
	p = append(p, data...)

	init := AdvCRCInit
	crc := crc24(init, p[4:])
	if !goodCRC {
		crc ^= 1
	}
	return append(p, byte(crc), byte(crc>>8), byte(crc>>16))
}

func rssiHeader(typ PacketType) Header {
	return Header{
		Type:      typ,
		Channel:   39,
		Clk100ns:  0x1000,
		RSSIMax:   -55,
		RSSIMin:   -70,
		RSSIAvg:   -60,
		RSSICount: 10,
	}
}

// advIndData is a plausible ADV_IND payload: advertiser address on the
// air least-significant byte first, then AD structures.
func advIndData() []byte {
	data := []byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	data = append(data, 0x02, adFlags, 0x06)
	data = append(data, 0x04, adNameComplete, 't', 'a', 'g')
	data = append(data, 0x05, adUUID16Complete, 0x0f, 0x18, 0x0a, 0x18)
	data = append(data, 0x02, adTxPower, 0xf4)
	return data
}

func TestDecodeAdvInd(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	frame := buildFrame(rssiHeader(PacketLE),
		buildBLEPayload(AdvAccessAddress, 0x00, advIndData(), true))

	pkt, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p, ok := pkt.(*BLEPacket)
	if !ok {
		t.Fatalf("decoded %T, want *BLEPacket", pkt)
	}

	if p.Kind() != PacketLE {
		t.Errorf("Kind = %v, want le", p.Kind())
	}
	if p.AccessAddress != AdvAccessAddress {
		t.Errorf("AccessAddress = 0x%08x", p.AccessAddress)
	}
	if p.PDUType != PDUAdvInd || PDUTypeName(p.PDUType) != "ADV_IND" {
		t.Errorf("PDUType = %d (%s)", p.PDUType, PDUTypeName(p.PDUType))
	}
	if got := p.Advertiser.String(); got != "11:22:33:44:55:66" {
		t.Errorf("Advertiser = %s, want 11:22:33:44:55:66", got)
	}
	if p.AddressType != AddressPublic {
		t.Errorf("AddressType = %s, want public", p.AddressType)
	}
	if !p.CRCValid {
		t.Error("CRCValid should be set for an intact packet")
	}
	if p.Promiscuous {
		t.Error("Promiscuous should be unset for sniffed frames")
	}
	if p.Length != 23 {
		t.Errorf("Length = %d, want 23", p.Length)
	}
	if p.Channel != 39 {
		t.Errorf("header channel = %d, want 39", p.Channel)
	}

	if p.Adv == nil {
		t.Fatal("advertising data not parsed")
	}
	if p.Adv.Flags == nil || *p.Adv.Flags != 0x06 {
		t.Errorf("Flags = %v", p.Adv.Flags)
	}
	if p.Adv.LocalName != "tag" || !p.Adv.NameComplete {
		t.Errorf("LocalName = %q (complete %v)", p.Adv.LocalName, p.Adv.NameComplete)
	}
	if len(p.Adv.Services16) != 2 || p.Adv.Services16[0] != 0x180f || p.Adv.Services16[1] != 0x180a {
		t.Errorf("Services16 = %04x", p.Adv.Services16)
	}
	if p.Adv.TxPower == nil || *p.Adv.TxPower != -12 {
		t.Errorf("TxPower = %v", p.Adv.TxPower)
	}

	if p.RSSI.Count != 10 || p.RSSI.Max != -55 || p.RSSI.Min != -70 || p.RSSI.Avg() != -60 {
		t.Errorf("RSSI = %+v", p.RSSI)
	}

	c := dec.Counters()
	if c.Decoded != 1 || c.Malformed != 0 || c.CRCInvalid != 0 {
		t.Errorf("counters = %+v", c)
	}
}

func TestDecodeRandomAddress(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	// TxAdd bit set marks a random advertiser address.
	frame := buildFrame(rssiHeader(PacketLE),
		buildBLEPayload(AdvAccessAddress, 0x40, advIndData(), true))

	pkt, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p := pkt.(*BLEPacket)
	if !p.TxAdd || p.AddressType != AddressRandom {
		t.Errorf("TxAdd = %v, AddressType = %s, want random", p.TxAdd, p.AddressType)
	}
}

func TestDecodePromiscuousMarksPacket(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	frame := buildFrame(rssiHeader(PacketLEPromisc),
		buildBLEPayload(AdvAccessAddress, 0x00, advIndData(), true))

	pkt, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p := pkt.(*BLEPacket); !p.Promiscuous {
		t.Error("Promiscuous should be set for promiscuous-mode frames")
	}
}

func TestDecodeCRCFailure(t *testing.T) {
	// Filtering on: the packet is dropped and counted.
	dec := NewDecoder(DefaultConfig())
	frame := buildFrame(rssiHeader(PacketLE),
		buildBLEPayload(AdvAccessAddress, 0x00, advIndData(), false))

	pkt, err := dec.Decode(frame)
	if !errors.Is(err, ErrCRCInvalid) {
		t.Fatalf("error = %v, want ErrCRCInvalid", err)
	}
	if pkt != nil {
		t.Errorf("dropped packet surfaced: %+v", pkt)
	}
	c := dec.Counters()
	if c.CRCInvalid != 1 || c.Decoded != 0 {
		t.Errorf("counters = %+v", c)
	}

	// Filtering off: the packet surfaces flagged, and still counts.
	cfg := DefaultConfig()
	cfg.VerifyCRC = false
	dec = NewDecoder(cfg)
	pkt, err = dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode with filtering off failed: %v", err)
	}
	if p := pkt.(*BLEPacket); p.CRCValid {
		t.Error("CRCValid should be unset on a corrupted packet")
	}
	c = dec.Counters()
	if c.CRCInvalid != 1 || c.Decoded != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestDecode128BitService(t *testing.T) {
	// Nordic UART service UUID, transmitted in reverse byte order.
	onAir := []byte{
		0x9e, 0xca, 0xdc, 0x24, 0x0e, 0xe5, 0xa9, 0xe0,
		0x93, 0xf3, 0xa3, 0xb5, 0x01, 0x00, 0x40, 0x6e,
	}
	data := []byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x11, adUUID128Complete}
	data = append(data, onAir...)

	dec := NewDecoder(DefaultConfig())
	frame := buildFrame(rssiHeader(PacketLE),
		buildBLEPayload(AdvAccessAddress, 0x00, data, true))

	pkt, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p := pkt.(*BLEPacket)
	if p.Adv == nil || len(p.Adv.Services128) != 1 {
		t.Fatalf("Services128 not parsed: %+v", p.Adv)
	}
	if got := p.Adv.Services128[0].String(); got != "6e400001-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Errorf("service UUID = %s", got)
	}
}

func TestDecodeSpectrum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpecanLowMHz = 2402
	dec := NewDecoder(cfg)

	h := rssiHeader(PacketSpecan)
	h.Channel = 5
	pkt, err := dec.Decode(buildFrame(h, nil))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p, ok := pkt.(*SpectrumPacket)
	if !ok {
		t.Fatalf("decoded %T, want *SpectrumPacket", pkt)
	}
	if p.FrequencyMHz != 2407 {
		t.Errorf("FrequencyMHz = %d, want 2407", p.FrequencyMHz)
	}
	if p.RSSI.Max != -55 || p.RSSI.Count != 10 {
		t.Errorf("RSSI = %+v", p.RSSI)
	}
}

func TestDecodeMessageText(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	payload := append([]byte("sweep started"), 0)
	payload = append(payload, 'x', 'y', 'z') // stale buffer tail

	pkt, err := dec.Decode(buildFrame(Header{Type: PacketMessage}, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p := pkt.(*MessagePacket); p.Text != "sweep started" {
		t.Errorf("Text = %q", p.Text)
	}

	pkt, err = dec.Decode(buildFrame(Header{Type: PacketKeepalive}, nil))
	if err != nil {
		t.Fatalf("keepalive Decode failed: %v", err)
	}
	if pkt.Kind() != PacketKeepalive {
		t.Errorf("Kind = %v, want keepalive", pkt.Kind())
	}
}

func TestDecodeBasicRate(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	payload := make([]byte, PayloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	pkt, err := dec.Decode(buildFrame(rssiHeader(PacketBR), payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p, ok := pkt.(*BRPacket)
	if !ok {
		t.Fatalf("decoded %T, want *BRPacket", pkt)
	}
	if len(p.Symbols) != PayloadSize || p.Symbols[49] != 49 {
		t.Errorf("Symbols = %d bytes", len(p.Symbols))
	}
	if p.RSSI.Count != 10 {
		t.Errorf("RSSI = %+v", p.RSSI)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	pkt, err := dec.Decode(buildFrame(Header{Type: PacketType(0x2a)}, nil))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
	if pkt != nil {
		t.Errorf("malformed frame surfaced: %+v", pkt)
	}
	if c := dec.Counters(); c.Malformed != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestDecodeRejectsDiscardFlag(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	h := rssiHeader(PacketLE)
	h.Status = StatusDiscard | StatusDMAOverflow
	if _, err := dec.Decode(buildFrame(h, nil)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestDecodeRejectsOversizedPDU(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	payload := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(payload[0:4], AdvAccessAddress)
	payload[5] = 45 // 6+45+3 exceeds the 50-byte payload

	if _, err := dec.Decode(buildFrame(Header{Type: PacketLE}, payload)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
	if c := dec.Counters(); c.Malformed != 1 {
		t.Errorf("counters = %+v", c)
	}
}

// TestDecodeTotality feeds every possible type byte with junk payloads;
// nothing may panic, and every call returns a packet or an error.
func TestDecodeTotality(t *testing.T) {
	dec := NewDecoder(DefaultConfig())
	for typ := 0; typ < 256; typ++ {
		var payload [PayloadSize]byte
		for i := range payload {
			payload[i] = byte(typ * (i + 7))
		}
		pkt, err := dec.Decode(buildFrame(Header{Type: PacketType(typ)}, payload[:]))
		if pkt == nil && err == nil {
			t.Fatalf("type %d: neither packet nor error", typ)
		}
	}
}

func TestParseBLEShortPayload(t *testing.T) {
	if _, err := parseBLE(Header{}, []byte{1, 2, 3}, AdvCRCInit); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestParseADStopsOnTruncation(t *testing.T) {
	// Element claims 9 bytes but only 3 remain.
	ad := parseAD([]byte{0x02, adFlags, 0x05, 0x09, adNameComplete, 'h', 'i'})
	if ad.Flags == nil || *ad.Flags != 0x05 {
		t.Errorf("Flags = %v", ad.Flags)
	}
	if ad.LocalName != "" {
		t.Errorf("truncated element parsed: %q", ad.LocalName)
	}

	// Zero length ends the walk.
	ad = parseAD([]byte{0x00, 0x04, adNameComplete, 'a', 'b', 'c'})
	if ad.LocalName != "" {
		t.Errorf("walk continued past zero length: %q", ad.LocalName)
	}
}

func TestParseADNamePrecedence(t *testing.T) {
	// A short name must not override a complete one, in either order.
	ad := parseAD([]byte{0x03, adNameComplete, 'a', 'b', 0x02, adNameShort, 'x'})
	if ad.LocalName != "ab" || !ad.NameComplete {
		t.Errorf("LocalName = %q (complete %v), want ab", ad.LocalName, ad.NameComplete)
	}
	ad = parseAD([]byte{0x02, adNameShort, 'x', 0x03, adNameComplete, 'a', 'b'})
	if ad.LocalName != "ab" || !ad.NameComplete {
		t.Errorf("LocalName = %q (complete %v), want ab", ad.LocalName, ad.NameComplete)
	}
}

func TestHeaderTimestamp(t *testing.T) {
	h := Header{ClkHigh: 1, Clk100ns: 16}
	want := time.Duration(1<<32+16) * 100 * time.Nanosecond
	if got := h.Timestamp(); got != want {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
	if got := (Header{}).Timestamp(); got != 0 {
		t.Errorf("zero header Timestamp = %v", got)
	}
}

func TestPacketTypeStrings(t *testing.T) {
	tests := []struct {
		typ  PacketType
		want string
	}{
		{PacketBR, "br"}, {PacketLE, "le"}, {PacketMessage, "message"},
		{PacketKeepalive, "keepalive"}, {PacketSpecan, "specan"},
		{PacketLEPromisc, "le-promisc"}, {PacketEgo, "ego"},
		{PacketType(200), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("PacketType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
	if PacketType(7).Valid() {
		t.Error("type 7 should be invalid")
	}
}

// TestCRC24KnownVector pins the LFSR against a value computed from the
// polynomial by hand, so a regression cannot hide behind the builder
// using the same code.
func TestCRC24KnownVector(t *testing.T) {
	// One zero byte from the advertising seed: eight shifts of the
	// initial state with taps applied.
	if got := crc24(AdvCRCInit, []byte{0x00}); got != 0x714e95 {
		t.Errorf("crc24(0x555555, 00) = 0x%06x, want 0x714e95", got)
	}
	// Appending the CRC's own bytes drives the state to zero.
	c := crc24(AdvCRCInit, []byte{0x12, 0x34, 0x56})
	full := []byte{0x12, 0x34, 0x56, byte(c), byte(c >> 8), byte(c >> 16)}
	if got := crc24(AdvCRCInit, full); got != 0 {
		t.Errorf("crc over message plus own crc = 0x%06x, want 0", got)
	}
}
