package recon

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/stream"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

// FollowConfig bounds a connection-following capture.
type FollowConfig struct {
	// Target restricts the follow to one advertiser, written as a MAC
	// address. Empty follows the first connection observed.
	Target string `json:"target,omitempty"`

	// AccessAddress retunes the correlator to a known data-channel
	// access address instead of the advertising one. Zero leaves the
	// advertising access address in place.
	AccessAddress uint32 `json:"access_address,omitempty"`

	// CRCInit seeds the CRC check for data-channel traffic. Zero uses
	// the advertising seed.
	CRCInit uint32 `json:"crc_init,omitempty"`

	// Promiscuous captures without a connection handshake, recovering
	// parameters from the traffic itself.
	Promiscuous bool `json:"promiscuous"`

	// Channel is the advertising channel to start on: 37, 38 or 39.
	Channel uint8 `json:"channel"`

	Duration   time.Duration `json:"duration"`
	MaxPackets uint64        `json:"max_packets"`
	Stream     stream.Config `json:"stream"`
	Sink       Sink          `json:"-"`
}

func DefaultFollowConfig() FollowConfig {
	return FollowConfig{
		Channel:  ubertooth.BLEAdvChannel37,
		Duration: 30 * time.Second,
		Stream:   stream.DefaultConfig(),
	}
}

func (c FollowConfig) Validate() error {
	if !c.Promiscuous {
		switch c.Channel {
		case ubertooth.BLEAdvChannel37, ubertooth.BLEAdvChannel38, ubertooth.BLEAdvChannel39:
		default:
			return fmt.Errorf("%w: advertising channel must be 37, 38 or 39, got %d",
				ubertooth.ErrInvalidParameter, c.Channel)
		}
	}
	if c.Target != "" {
		if _, err := c.targetAddr(); err != nil {
			return err
		}
	}
	return nil
}

func (c FollowConfig) targetAddr() ([6]byte, error) {
	var addr [6]byte
	mac, err := net.ParseMAC(c.Target)
	if err != nil || len(mac) != 6 {
		return addr, fmt.Errorf("%w: target %q is not a 6-octet address",
			ubertooth.ErrInvalidParameter, c.Target)
	}
	copy(addr[:], mac)
	return addr, nil
}

// FollowReport summarizes the traffic seen on one access address.
type FollowReport struct {
	AccessAddress string         `json:"access_address"`
	Packets       uint64         `json:"packets"`
	CRCValid      uint64         `json:"crc_valid"`
	CRCInvalid    uint64         `json:"crc_invalid"`
	FirstSeen     time.Duration  `json:"first_seen_ns"`
	LastSeen      time.Duration  `json:"last_seen_ns"`
	RSSI          codec.Stats    `json:"rssi"`
	Channels      []ChannelCount `json:"channels"`
}

// ChannelCount is one entry of a follow's channel coverage map.
type ChannelCount struct {
	Channel uint8  `json:"channel"`
	Packets uint64 `json:"packets"`
}

type followTarget struct {
	report   FollowReport
	channels map[uint8]uint64
}

// FollowAggregator keys BLE traffic by access address and tracks how a
// connection hops across channels.
type FollowAggregator struct {
	targets map[uint32]*followTarget
}

func NewFollowAggregator() *FollowAggregator {
	return &FollowAggregator{targets: make(map[uint32]*followTarget)}
}

func (a *FollowAggregator) Observe(p codec.Packet) {
	bp, ok := p.(*codec.BLEPacket)
	if !ok {
		return
	}
	t := a.targets[bp.AccessAddress]
	if t == nil {
		t = &followTarget{
			report: FollowReport{
				AccessAddress: fmt.Sprintf("0x%08x", bp.AccessAddress),
				FirstSeen:     bp.Timestamp(),
			},
			channels: make(map[uint8]uint64),
		}
		a.targets[bp.AccessAddress] = t
	}

	r := &t.report
	r.Packets++
	if bp.CRCValid {
		r.CRCValid++
	} else {
		r.CRCInvalid++
	}
	r.LastSeen = bp.Timestamp()
	r.RSSI = r.RSSI.Merge(bp.RSSI)
	t.channels[bp.Channel]++
}

func (a *FollowAggregator) Flush(sum *Summary) {
	reports := make([]FollowReport, 0, len(a.targets))
	for _, t := range a.targets {
		r := t.report
		r.Channels = make([]ChannelCount, 0, len(t.channels))
		for ch, n := range t.channels {
			r.Channels = append(r.Channels, ChannelCount{Channel: ch, Packets: n})
		}
		sort.Slice(r.Channels, func(i, j int) bool {
			return r.Channels[i].Channel < r.Channels[j].Channel
		})
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].AccessAddress < reports[j].AccessAddress
	})
	sum.Follows = reports
}

// Follow captures BLE traffic by access address, tracking connections
// either from their advertising handshake or promiscuously. CRC failures
// are counted per target rather than dropped.
func Follow(ctx context.Context, mgr *ubertooth.Manager, cfg FollowConfig) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	crcInit := cfg.CRCInit
	if crcInit == 0 {
		crcInit = codec.AdvCRCInit
	}
	rc := RunConfig{
		Duration:   cfg.Duration,
		MaxPackets: cfg.MaxPackets,
		Stream:     cfg.Stream,
		Decoder: codec.Config{
			VerifyCRC: false,
			CRCInit:   crcInit,
		},
		Sink: cfg.Sink,
	}

	arm := func(dev *ubertooth.Device) error {
		if err := dev.SetModulation(ubertooth.ModBTLowEnergy); err != nil {
			return err
		}
		if !cfg.Promiscuous {
			if err := dev.SetChannel(cfg.Channel); err != nil {
				return err
			}
		}
		if err := dev.SetCRCVerify(false); err != nil {
			return err
		}
		if cfg.AccessAddress != 0 {
			if err := dev.SetAccessAddress(cfg.AccessAddress); err != nil {
				return err
			}
		}
		if cfg.Target != "" {
			addr, err := cfg.targetAddr()
			if err != nil {
				return err
			}
			if err := dev.BTLESetTarget(addr); err != nil {
				return err
			}
		}
		if cfg.Promiscuous {
			return dev.StartBTLEPromisc()
		}
		return dev.StartBTLESniff(true)
	}
	disarm := func(dev *ubertooth.Device) error {
		err := dev.Stop()
		if cfg.Target != "" {
			if cerr := dev.BTLECancelFollow(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return capture(ctx, mgr, rc, NewFollowAggregator(), "follow", arm, disarm)
}
