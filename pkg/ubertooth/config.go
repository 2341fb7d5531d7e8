package ubertooth

import "fmt"

// Config mirrors the radio state the host believes is applied to the
// device. Command wrappers update it only after the firmware acknowledged
// the round-trip, so a failed call never desynchronizes the mirror. The
// mirror is what gets replayed onto hardware after a reconnect.
type Config struct {
	Channel       uint8      `json:"channel"`
	Modulation    Modulation `json:"modulation"`
	PALevel       uint8      `json:"pa_level"`
	PAEnabled     bool       `json:"pa_enabled"`
	HGMEnabled    bool       `json:"hgm_enabled"`
	Squelch       int8       `json:"squelch_dbm"`
	AccessAddress uint32     `json:"access_address"`
	CRCVerify     bool       `json:"crc_verify"`
}

// DefaultConfig returns the nominal state the firmware boots with.
func DefaultConfig() Config {
	return Config{
		Channel:       39,
		Modulation:    ModBTBasicRate,
		PALevel:       PALevelMax,
		PAEnabled:     false,
		HGMEnabled:    false,
		Squelch:       DefaultSquelch,
		AccessAddress: BLEAdvAccessAddress,
		CRCVerify:     true,
	}
}

// Validate checks that every field is inside the range the firmware
// accepts.
func (c Config) Validate() error {
	if c.Channel > ChannelMax {
		return fmt.Errorf("%w: channel %d (max %d)", ErrInvalidParameter, c.Channel, ChannelMax)
	}
	if !c.Modulation.Valid() {
		return fmt.Errorf("%w: modulation %d", ErrInvalidParameter, c.Modulation)
	}
	if c.PALevel > PALevelMax {
		return fmt.Errorf("%w: PA level %d (max %d)", ErrInvalidParameter, c.PALevel, PALevelMax)
	}
	if c.Squelch < SquelchMin || c.Squelch > SquelchMax {
		return fmt.Errorf("%w: squelch %d dBm (range %d..%d)", ErrInvalidParameter, c.Squelch, SquelchMin, SquelchMax)
	}
	return nil
}

// Config returns a snapshot of the mirrored device configuration.
func (d *Device) Config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// updateConfig mutates the mirror. Called only after the corresponding
// command round-trip succeeded.
func (d *Device) updateConfig(fn func(*Config)) {
	d.cfgMu.Lock()
	fn(&d.cfg)
	d.cfgMu.Unlock()
}

// ApplyConfig replays a full configuration onto the hardware, field by
// field. Used after reconnecting to restore the pre-loss state.
func (d *Device) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := d.SetChannel(cfg.Channel); err != nil {
		return fmt.Errorf("failed to restore channel: %w", err)
	}
	if err := d.SetModulation(cfg.Modulation); err != nil {
		return fmt.Errorf("failed to restore modulation: %w", err)
	}
	if _, err := d.SetPALevel(cfg.PALevel); err != nil {
		return fmt.Errorf("failed to restore PA level: %w", err)
	}
	if err := d.SetPAEnable(cfg.PAEnabled); err != nil {
		return fmt.Errorf("failed to restore PA enable: %w", err)
	}
	if err := d.SetHGM(cfg.HGMEnabled); err != nil {
		return fmt.Errorf("failed to restore HGM: %w", err)
	}
	if err := d.SetSquelch(cfg.Squelch); err != nil {
		return fmt.Errorf("failed to restore squelch: %w", err)
	}
	if err := d.SetAccessAddress(cfg.AccessAddress); err != nil {
		return fmt.Errorf("failed to restore access address: %w", err)
	}
	if err := d.SetCRCVerify(cfg.CRCVerify); err != nil {
		return fmt.Errorf("failed to restore CRC verify: %w", err)
	}
	return nil
}
