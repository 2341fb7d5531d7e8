// Package recon runs bounded capture sessions against a connected device
// and aggregates the decoded traffic into deterministic summaries.
package recon

import (
	"context"
	"sync"
	"time"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/stream"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

// RunConfig bounds one capture run.
type RunConfig struct {
	// Duration ends the run after a fixed wall-clock time. Zero means
	// the run continues until another bound fires.
	Duration time.Duration `json:"duration"`

	// MaxPackets ends the run after this many decoded packets. Zero
	// means unbounded.
	MaxPackets uint64 `json:"max_packets"`

	Stream  stream.Config `json:"stream"`
	Decoder codec.Config  `json:"decoder"`

	// Sink receives a copy of every decoded packet. Optional.
	Sink Sink `json:"-"`
}

// Aggregator folds decoded packets into a per-mode view of the run.
// Observe is only called from the run loop; Flush writes the final view
// into the summary and is called exactly once.
type Aggregator interface {
	Observe(p codec.Packet)
	Flush(sum *Summary)
}

// Summary is the result of one capture run.
type Summary struct {
	SessionID string         `json:"session_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Started   time.Time      `json:"started"`
	Ended     time.Time      `json:"ended"`
	Stream    stream.Stats   `json:"stream"`
	Codec     codec.Counters `json:"codec"`

	Devices  []DeviceReport    `json:"devices,omitempty"`
	Spectrum []FrequencyReport `json:"spectrum,omitempty"`
	Follows  []FollowReport    `json:"follows,omitempty"`
}

// Run drains frames through a decoder into agg until the duration
// elapses, the packet budget is reached, the stream closes, or ctx is
// cancelled. The aggregate is flushed exactly once no matter which bound
// fires first, so racing bounds still produce a single coherent summary.
func Run(ctx context.Context, frames <-chan stream.RawFrame, cfg RunConfig, agg Aggregator) *Summary {
	dec := codec.NewDecoder(cfg.Decoder)
	sum := &Summary{Started: time.Now()}

	var deadline <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var flush sync.Once
	finish := func() {
		flush.Do(func() {
			sum.Ended = time.Now()
			sum.Codec = dec.Counters()
			agg.Flush(sum)
		})
	}
	defer finish()

	var decoded uint64
	for {
		select {
		case <-ctx.Done():
			return sum
		case <-deadline:
			return sum
		case f, ok := <-frames:
			if !ok {
				return sum
			}
			p, err := dec.Decode(f)
			if err != nil {
				continue
			}
			if cfg.Sink != nil {
				cfg.Sink.Write(p)
			}
			agg.Observe(p)
			decoded++
			if cfg.MaxPackets > 0 && decoded >= cfg.MaxPackets {
				return sum
			}
		}
	}
}

// capture wires a run to a live device: start the stream engine first so
// reads are already pending, arm the firmware, drain, then tear both
// down. disarm errors are logged, not returned, since the run itself has
// already completed.
func capture(ctx context.Context, mgr *ubertooth.Manager, rc RunConfig, agg Aggregator, mode string, arm, disarm func(*ubertooth.Device) error) (*Summary, error) {
	dev := mgr.Device()
	if dev == nil {
		return nil, ubertooth.ErrNotConnected
	}

	sess, err := mgr.StartStream(rc.Stream)
	if err != nil {
		return nil, err
	}
	if err := arm(dev); err != nil {
		mgr.StopStream()
		return nil, err
	}

	sum := Run(ctx, sess.Frames(), rc, agg)
	sum.Mode = mode
	sum.SessionID = sess.ID()

	if disarm != nil {
		if derr := disarm(dev); derr != nil {
			log.Debugf("%s disarm: %v", mode, derr)
		}
	}
	stats, stopErr := mgr.StopStream()
	sum.Stream = stats

	if serr := sess.Err(); serr != nil {
		return sum, serr
	}
	return sum, stopErr
}

func stopFirmware(dev *ubertooth.Device) error {
	return dev.Stop()
}
