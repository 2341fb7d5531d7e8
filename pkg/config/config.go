package config

import (
	"fmt"
	"time"

	"github.com/herlein/gotooth/pkg/registers"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

// Profile holds everything worth persisting about an Ubertooth One:
// its identity, the radio settings the firmware reported, and a raw
// CC2400 register snapshot for diagnostics.
type Profile struct {
	Serial    string                 `json:"serial"`
	Board     string                 `json:"board"`
	Firmware  string                 `json:"firmware"`
	Timestamp time.Time              `json:"timestamp"`
	Radio     ubertooth.Config       `json:"radio"`
	Registers *registers.RegisterMap `json:"registers,omitempty"`
}

// Radio is the slice of the device surface a profile dump or restore
// touches. *ubertooth.Device satisfies it.
type Radio interface {
	Info() ubertooth.Info
	GetChannel() (uint8, error)
	GetModulation() (ubertooth.Modulation, error)
	GetPALevel() (uint8, error)
	GetPAEnable() (bool, error)
	GetHGM() (bool, error)
	GetSquelch() (int8, error)
	GetAccessAddress() (uint32, error)
	GetCRCVerify() (bool, error)
	ApplyConfig(cfg ubertooth.Config) error
	ReadRegister(reg uint8) (uint16, error)
}

// DumpFromDevice reads the current radio configuration from a device.
// Every field is queried from the firmware rather than taken from the
// host-side mirror, so the profile reflects what the hardware is
// actually doing.
func DumpFromDevice(r Radio) (*Profile, error) {
	var (
		cfg ubertooth.Config
		err error
	)
	if cfg.Channel, err = r.GetChannel(); err != nil {
		return nil, fmt.Errorf("failed to read channel: %w", err)
	}
	if cfg.Modulation, err = r.GetModulation(); err != nil {
		return nil, fmt.Errorf("failed to read modulation: %w", err)
	}
	if cfg.PALevel, err = r.GetPALevel(); err != nil {
		return nil, fmt.Errorf("failed to read PA level: %w", err)
	}
	if cfg.PAEnabled, err = r.GetPAEnable(); err != nil {
		return nil, fmt.Errorf("failed to read PA enable: %w", err)
	}
	if cfg.HGMEnabled, err = r.GetHGM(); err != nil {
		return nil, fmt.Errorf("failed to read HGM: %w", err)
	}
	if cfg.Squelch, err = r.GetSquelch(); err != nil {
		return nil, fmt.Errorf("failed to read squelch: %w", err)
	}
	if cfg.AccessAddress, err = r.GetAccessAddress(); err != nil {
		return nil, fmt.Errorf("failed to read access address: %w", err)
	}
	if cfg.CRCVerify, err = r.GetCRCVerify(); err != nil {
		return nil, fmt.Errorf("failed to read CRC verify: %w", err)
	}

	// Best effort: a register snapshot is diagnostic extra, and very
	// old firmware rejects the read command.
	regs, _ := registers.ReadAll(r)

	info := r.Info()
	return &Profile{
		Serial:    info.Serial,
		Board:     info.BoardName,
		Firmware:  info.FirmwareRevision,
		Timestamp: time.Now(),
		Radio:     cfg,
		Registers: regs,
	}, nil
}

// ApplyToDevice replays a saved profile onto a device. Only the radio
// settings are written back; the register snapshot is never restored,
// because the firmware reprograms the CC2400 itself whenever a capture
// mode starts.
func ApplyToDevice(r Radio, profile *Profile) error {
	if err := profile.Radio.Validate(); err != nil {
		return fmt.Errorf("saved profile is invalid: %w", err)
	}
	return r.ApplyConfig(profile.Radio)
}

// FrequencyMHz returns the center frequency of the profiled channel.
func (p *Profile) FrequencyMHz() uint16 {
	return ubertooth.FrequencyMHz(p.Radio.Channel)
}

// ModulationString returns a human-readable modulation format.
func (p *Profile) ModulationString() string {
	return p.Radio.Modulation.String()
}
