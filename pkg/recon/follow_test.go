package recon

import (
	"errors"
	"testing"
	"time"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

func dataPacket(aa uint32, channel uint8, clk uint32, crcOK bool) *codec.BLEPacket {
	return &codec.BLEPacket{
		Header: codec.Header{
			Type:     codec.PacketLE,
			Channel:  channel,
			Clk100ns: clk,
		},
		AccessAddress: aa,
		CRCValid:      crcOK,
		RSSI:          codec.Stats{Max: -48, Min: -60, Sum: -216, Count: 4},
	}
}

func TestFollowAggregatorTracksHops(t *testing.T) {
	a := NewFollowAggregator()

	a.Observe(dataPacket(0x50654321, 37, 100, true))
	a.Observe(dataPacket(0x50654321, 10, 200, true))
	a.Observe(dataPacket(0x50654321, 37, 300, false))
	a.Observe(dataPacket(0x11223344, 22, 400, true))
	a.Observe(&codec.MessagePacket{}) // ignored

	var sum Summary
	a.Flush(&sum)

	if len(sum.Follows) != 2 {
		t.Fatalf("got %d targets, want 2", len(sum.Follows))
	}
	// Sorted by access address string.
	if sum.Follows[0].AccessAddress != "0x11223344" || sum.Follows[1].AccessAddress != "0x50654321" {
		t.Errorf("target order = %s, %s", sum.Follows[0].AccessAddress, sum.Follows[1].AccessAddress)
	}

	f := sum.Follows[1]
	if f.Packets != 3 || f.CRCValid != 2 || f.CRCInvalid != 1 {
		t.Errorf("counts = %d/%d/%d", f.Packets, f.CRCValid, f.CRCInvalid)
	}
	if f.FirstSeen != 100*100*time.Nanosecond || f.LastSeen != 300*100*time.Nanosecond {
		t.Errorf("seen window = %v..%v", f.FirstSeen, f.LastSeen)
	}
	if len(f.Channels) != 2 || f.Channels[0].Channel != 10 || f.Channels[1].Channel != 37 {
		t.Fatalf("channel map = %+v", f.Channels)
	}
	if f.Channels[1].Packets != 2 {
		t.Errorf("channel 37 packets = %d, want 2", f.Channels[1].Packets)
	}
	if f.RSSI.Count != 12 {
		t.Errorf("rssi count = %d, want 12", f.RSSI.Count)
	}
}

func TestFollowConfigValidate(t *testing.T) {
	cfg := DefaultFollowConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg.Channel = 12
	if err := cfg.Validate(); !errors.Is(err, ubertooth.ErrInvalidParameter) {
		t.Errorf("channel 12: error = %v, want ErrInvalidParameter", err)
	}

	// Promiscuous capture does not park on an advertising channel.
	cfg.Promiscuous = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("promiscuous config rejected: %v", err)
	}

	cfg = DefaultFollowConfig()
	cfg.Target = "aa:bb:cc:dd:ee:ff"
	if err := cfg.Validate(); err != nil {
		t.Errorf("target rejected: %v", err)
	}
	cfg.Target = "not-an-address"
	if err := cfg.Validate(); !errors.Is(err, ubertooth.ErrInvalidParameter) {
		t.Errorf("bad target: error = %v, want ErrInvalidParameter", err)
	}
	cfg.Target = "01:02:03:04:05:06:07:08"
	if err := cfg.Validate(); !errors.Is(err, ubertooth.ErrInvalidParameter) {
		t.Errorf("8-octet target: error = %v, want ErrInvalidParameter", err)
	}
}

func TestFollowTargetBytes(t *testing.T) {
	cfg := FollowConfig{Target: "aa:bb:cc:dd:ee:ff"}
	addr, err := cfg.targetAddr()
	if err != nil {
		t.Fatalf("targetAddr failed: %v", err)
	}
	if addr != [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff} {
		t.Errorf("addr = %x", addr)
	}
}
