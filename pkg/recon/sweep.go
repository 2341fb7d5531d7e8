package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/stream"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

// DefaultActivityThreshold marks a sweep sample as active when its peak
// RSSI reaches this level, in dBm.
const DefaultActivityThreshold = -60

// SweepConfig bounds a spectrum sweep.
type SweepConfig struct {
	LowMHz  uint16 `json:"low_mhz"`
	HighMHz uint16 `json:"high_mhz"`

	// ActivityThreshold is the peak RSSI, in dBm, at or above which a
	// sample counts toward a frequency's activity percentage.
	ActivityThreshold int8 `json:"activity_threshold"`

	Duration   time.Duration `json:"duration"`
	MaxPackets uint64        `json:"max_packets"`
	Stream     stream.Config `json:"stream"`
	Sink       Sink          `json:"-"`
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		LowMHz:            ubertooth.BaseFrequencyMHz,
		HighMHz:           ubertooth.FrequencyMHz(ubertooth.ChannelMax),
		ActivityThreshold: DefaultActivityThreshold,
		Duration:          10 * time.Second,
		Stream:            stream.DefaultConfig(),
	}
}

func (c SweepConfig) Validate() error {
	low := uint16(ubertooth.BaseFrequencyMHz)
	high := ubertooth.FrequencyMHz(ubertooth.ChannelMax)
	if c.LowMHz < low || c.HighMHz > high || c.LowMHz > c.HighMHz {
		return fmt.Errorf("%w: sweep range %d-%d MHz outside %d-%d",
			ubertooth.ErrInvalidParameter, c.LowMHz, c.HighMHz, low, high)
	}
	return nil
}

// FrequencyReport summarizes one frequency bucket of a sweep.
type FrequencyReport struct {
	FrequencyMHz uint16      `json:"frequency_mhz"`
	Samples      uint64      `json:"samples"`
	Active       uint64      `json:"active"`
	ActivityPct  float64     `json:"activity_pct"`
	RSSI         codec.Stats `json:"rssi"`
}

// SweepAggregator buckets spectrum samples by frequency.
type SweepAggregator struct {
	threshold int8
	buckets   map[uint16]*FrequencyReport
}

func NewSweepAggregator(threshold int8) *SweepAggregator {
	return &SweepAggregator{
		threshold: threshold,
		buckets:   make(map[uint16]*FrequencyReport),
	}
}

func (a *SweepAggregator) Observe(p codec.Packet) {
	sp, ok := p.(*codec.SpectrumPacket)
	if !ok {
		return
	}
	b := a.buckets[sp.FrequencyMHz]
	if b == nil {
		b = &FrequencyReport{FrequencyMHz: sp.FrequencyMHz}
		a.buckets[sp.FrequencyMHz] = b
	}
	b.Samples++
	if sp.RSSI.Count > 0 && sp.RSSI.Max >= a.threshold {
		b.Active++
	}
	b.RSSI = b.RSSI.Merge(sp.RSSI)
}

func (a *SweepAggregator) Flush(sum *Summary) {
	reports := make([]FrequencyReport, 0, len(a.buckets))
	for _, b := range a.buckets {
		r := *b
		if r.Samples > 0 {
			r.ActivityPct = 100 * float64(r.Active) / float64(r.Samples)
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].FrequencyMHz < reports[j].FrequencyMHz
	})
	sum.Spectrum = reports
}

// Sweep runs the firmware spectrum analyzer across a frequency range and
// reports per-frequency occupancy.
func Sweep(ctx context.Context, mgr *ubertooth.Manager, cfg SweepConfig) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rc := RunConfig{
		Duration:   cfg.Duration,
		MaxPackets: cfg.MaxPackets,
		Stream:     cfg.Stream,
		Decoder: codec.Config{
			SpecanLowMHz: cfg.LowMHz,
		},
		Sink: cfg.Sink,
	}

	arm := func(dev *ubertooth.Device) error {
		return dev.StartSpecan(cfg.LowMHz, cfg.HighMHz)
	}
	return capture(ctx, mgr, rc, NewSweepAggregator(cfg.ActivityThreshold), "sweep", arm, stopFirmware)
}
