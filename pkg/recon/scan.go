package recon

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/stream"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

// ScanConfig bounds a BLE advertising survey.
type ScanConfig struct {
	// Channel is the advertising channel to park on: 37, 38 or 39.
	Channel uint8 `json:"channel"`

	// Follow hops along when a connection request is observed.
	Follow bool `json:"follow"`

	// VerifyCRC drops advertising packets that fail the CRC check.
	VerifyCRC bool `json:"verify_crc"`

	Duration   time.Duration `json:"duration"`
	MaxPackets uint64        `json:"max_packets"`
	Stream     stream.Config `json:"stream"`
	Sink       Sink          `json:"-"`
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Channel:   ubertooth.BLEAdvChannel37,
		VerifyCRC: true,
		Duration:  30 * time.Second,
		Stream:    stream.DefaultConfig(),
	}
}

func (c ScanConfig) Validate() error {
	switch c.Channel {
	case ubertooth.BLEAdvChannel37, ubertooth.BLEAdvChannel38, ubertooth.BLEAdvChannel39:
		return nil
	}
	return fmt.Errorf("%w: advertising channel must be 37, 38 or 39, got %d",
		ubertooth.ErrInvalidParameter, c.Channel)
}

// DeviceReport summarizes one advertiser seen during a scan. Timestamps
// are device-clock offsets, so identical input always yields identical
// reports.
type DeviceReport struct {
	Address      string        `json:"address"`
	AddressType  string        `json:"address_type"`
	Packets      uint64        `json:"packets"`
	FirstSeen    time.Duration `json:"first_seen_ns"`
	LastSeen     time.Duration `json:"last_seen_ns"`
	RSSI         codec.Stats   `json:"rssi"`
	Name         string        `json:"name,omitempty"`
	Services16   []string      `json:"services16,omitempty"`
	Services128  []string      `json:"services128,omitempty"`
	Manufacturer string        `json:"manufacturer,omitempty"`
}

type scanDevice struct {
	report DeviceReport
	svc16  map[uint16]struct{}
	svc128 map[uuid.UUID]struct{}
}

// ScanAggregator keys advertising traffic by device address.
type ScanAggregator struct {
	devices map[string]*scanDevice
}

func NewScanAggregator() *ScanAggregator {
	return &ScanAggregator{devices: make(map[string]*scanDevice)}
}

func (a *ScanAggregator) Observe(p codec.Packet) {
	bp, ok := p.(*codec.BLEPacket)
	if !ok || len(bp.Advertiser) == 0 {
		return
	}
	key := bp.Advertiser.String()
	d := a.devices[key]
	if d == nil {
		d = &scanDevice{
			report: DeviceReport{
				Address:     key,
				AddressType: bp.AddressType.String(),
				FirstSeen:   bp.Timestamp(),
			},
			svc16:  make(map[uint16]struct{}),
			svc128: make(map[uuid.UUID]struct{}),
		}
		a.devices[key] = d
	}

	r := &d.report
	r.Packets++
	r.LastSeen = bp.Timestamp()
	r.RSSI = r.RSSI.Merge(bp.RSSI)

	if bp.Adv == nil {
		return
	}
	if r.Name == "" && bp.Adv.LocalName != "" {
		r.Name = bp.Adv.LocalName
	}
	for _, u := range bp.Adv.Services16 {
		d.svc16[u] = struct{}{}
	}
	for _, u := range bp.Adv.Services128 {
		d.svc128[u] = struct{}{}
	}
	if len(bp.Adv.Manufacturer) > 0 {
		r.Manufacturer = hex.EncodeToString(bp.Adv.Manufacturer)
	}
}

func (a *ScanAggregator) Flush(sum *Summary) {
	reports := make([]DeviceReport, 0, len(a.devices))
	for _, d := range a.devices {
		r := d.report
		for u := range d.svc16 {
			r.Services16 = append(r.Services16, fmt.Sprintf("%04x", u))
		}
		sort.Strings(r.Services16)
		for u := range d.svc128 {
			r.Services128 = append(r.Services128, u.String())
		}
		sort.Strings(r.Services128)
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Address < reports[j].Address
	})
	sum.Devices = reports
}

// Scan surveys BLE advertising traffic on one channel and reports every
// advertiser seen.
func Scan(ctx context.Context, mgr *ubertooth.Manager, cfg ScanConfig) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rc := RunConfig{
		Duration:   cfg.Duration,
		MaxPackets: cfg.MaxPackets,
		Stream:     cfg.Stream,
		Decoder: codec.Config{
			VerifyCRC: cfg.VerifyCRC,
			CRCInit:   codec.AdvCRCInit,
		},
		Sink: cfg.Sink,
	}

	arm := func(dev *ubertooth.Device) error {
		if err := dev.SetModulation(ubertooth.ModBTLowEnergy); err != nil {
			return err
		}
		if err := dev.SetChannel(cfg.Channel); err != nil {
			return err
		}
		if err := dev.SetCRCVerify(cfg.VerifyCRC); err != nil {
			return err
		}
		return dev.StartBTLESniff(cfg.Follow)
	}
	return capture(ctx, mgr, rc, NewScanAggregator(), "scan", arm, stopFirmware)
}
