package ubertooth

import (
	"encoding/binary"
	"fmt"
)

// boolValue maps a flag onto the 0/1 wValue the firmware expects.
func boolValue(on bool) uint16 {
	if on {
		return 1
	}
	return 0
}

// requestBool reads a single-byte flag response.
func (d *Device) requestBool(opcode uint8) (bool, error) {
	buf := make([]byte, 1)
	if err := d.requestExact(opcode, 0, 0, buf, ShortTimeout); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// SetChannel tunes the radio to a 2.4 GHz channel index (channel k sits
// at 2402+k MHz). Out-of-range input is rejected, never clamped.
func (d *Device) SetChannel(channel uint8) error {
	if channel > ChannelMax {
		return fmt.Errorf("%w: channel %d (max %d)", ErrInvalidParameter, channel, ChannelMax)
	}
	if err := d.Command(CmdSetChannel, uint16(channel), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.Channel = channel })
	return nil
}

// GetChannel reads the tuned channel index back from the firmware.
func (d *Device) GetChannel() (uint8, error) {
	buf := make([]byte, 2)
	if err := d.requestExact(CmdGetChannel, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(buf)
	if v > ChannelMax {
		return 0, fmt.Errorf("%w: firmware reports channel %d", ErrProtocol, v)
	}
	channel := uint8(v)
	d.updateConfig(func(c *Config) { c.Channel = channel })
	return channel, nil
}

// SetModulation selects the demodulator the capture paths use.
func (d *Device) SetModulation(mod Modulation) error {
	if !mod.Valid() {
		return fmt.Errorf("%w: modulation %d", ErrInvalidParameter, uint8(mod))
	}
	if err := d.Command(CmdSetMod, uint16(mod), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.Modulation = mod })
	return nil
}

// GetModulation reads the active demodulator selection.
func (d *Device) GetModulation() (Modulation, error) {
	buf := make([]byte, 1)
	if err := d.requestExact(CmdGetMod, 0, 0, buf, ShortTimeout); err != nil {
		return ModNone, err
	}
	mod := Modulation(buf[0])
	if !mod.Valid() {
		return ModNone, fmt.Errorf("%w: firmware reports modulation %d", ErrProtocol, buf[0])
	}
	d.updateConfig(func(c *Config) { c.Modulation = mod })
	return mod, nil
}

// SetPALevel sets the CC2400 output amplifier level (0..7) and returns
// the estimated output power in dBm.
func (d *Device) SetPALevel(level uint8) (float64, error) {
	if level > PALevelMax {
		return 0, fmt.Errorf("%w: PA level %d (max %d)", ErrInvalidParameter, level, PALevelMax)
	}
	if err := d.Command(CmdSetPALevel, uint16(level), 0, nil, ShortTimeout); err != nil {
		return 0, err
	}
	d.updateConfig(func(c *Config) { c.PALevel = level })
	return PALevelDBm[level], nil
}

// GetPALevel reads the output amplifier level.
func (d *Device) GetPALevel() (uint8, error) {
	buf := make([]byte, 1)
	if err := d.requestExact(CmdGetPALevel, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	if buf[0] > PALevelMax {
		return 0, fmt.Errorf("%w: firmware reports PA level %d", ErrProtocol, buf[0])
	}
	level := buf[0]
	d.updateConfig(func(c *Config) { c.PALevel = level })
	return level, nil
}

// SetPAEnable switches the external amplifier fitted on Ubertooth One
// hardware.
func (d *Device) SetPAEnable(on bool) error {
	if err := d.Command(CmdSetPAEN, boolValue(on), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.PAEnabled = on })
	return nil
}

// GetPAEnable reads the external amplifier state.
func (d *Device) GetPAEnable() (bool, error) {
	on, err := d.requestBool(CmdGetPAEN)
	if err != nil {
		return false, err
	}
	d.updateConfig(func(c *Config) { c.PAEnabled = on })
	return on, nil
}

// SetHGM switches the receive-path high-gain mode.
func (d *Device) SetHGM(on bool) error {
	if err := d.Command(CmdSetHGM, boolValue(on), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.HGMEnabled = on })
	return nil
}

// GetHGM reads the high-gain mode state.
func (d *Device) GetHGM() (bool, error) {
	on, err := d.requestBool(CmdGetHGM)
	if err != nil {
		return false, err
	}
	d.updateConfig(func(c *Config) { c.HGMEnabled = on })
	return on, nil
}

// SetSquelch sets the carrier-sense threshold in dBm.
func (d *Device) SetSquelch(dbm int8) error {
	if dbm < SquelchMin || dbm > SquelchMax {
		return fmt.Errorf("%w: squelch %d dBm (range %d..%d)", ErrInvalidParameter, dbm, SquelchMin, SquelchMax)
	}
	if err := d.Command(CmdSetSquelch, uint16(int16(dbm)), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.Squelch = dbm })
	return nil
}

// GetSquelch reads the carrier-sense threshold.
func (d *Device) GetSquelch() (int8, error) {
	buf := make([]byte, 1)
	if err := d.requestExact(CmdGetSquelch, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	dbm := int8(buf[0])
	d.updateConfig(func(c *Config) { c.Squelch = dbm })
	return dbm, nil
}

// SetUSRLED drives the user LED.
func (d *Device) SetUSRLED(on bool) error {
	return d.Command(CmdSetUSRLED, boolValue(on), 0, nil, ShortTimeout)
}

// GetUSRLED reads the user LED state.
func (d *Device) GetUSRLED() (bool, error) {
	return d.requestBool(CmdGetUSRLED)
}

// SetRXLED drives the receive-activity LED.
func (d *Device) SetRXLED(on bool) error {
	return d.Command(CmdSetRXLED, boolValue(on), 0, nil, ShortTimeout)
}

// GetRXLED reads the receive-activity LED state.
func (d *Device) GetRXLED() (bool, error) {
	return d.requestBool(CmdGetRXLED)
}

// SetTXLED drives the transmit-activity LED.
func (d *Device) SetTXLED(on bool) error {
	return d.Command(CmdSetTXLED, boolValue(on), 0, nil, ShortTimeout)
}

// GetTXLED reads the transmit-activity LED state.
func (d *Device) GetTXLED() (bool, error) {
	return d.requestBool(CmdGetTXLED)
}

// GetClock reads the firmware's Bluetooth slot clock (3200 Hz ticks).
func (d *Device) GetClock() (uint32, error) {
	buf := make([]byte, 4)
	if err := d.requestExact(CmdGetClock, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// SetClock sets the slot clock, lining captures up with a piconet master.
func (d *Device) SetClock(clkn uint32) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, clkn)
	return d.Command(CmdSetClock, 0, 0, data, ShortTimeout)
}

// TrimClock nudges the 100 ns clock to correct accumulated drift.
func (d *Device) TrimClock(offset uint16) error {
	return d.Command(CmdTrimClock, offset, 0, nil, ShortTimeout)
}

// ReadRegister reads one 16-bit CC2400 register.
func (d *Device) ReadRegister(reg uint8) (uint16, error) {
	buf := make([]byte, 2)
	if err := d.requestExact(CmdReadRegister, uint16(reg), 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// WriteRegister writes one 16-bit CC2400 register. Diagnostics only;
// normal operation goes through the typed wrappers.
func (d *Device) WriteRegister(reg uint8, value uint16) error {
	return d.Command(CmdWriteRegister, uint16(reg), value, nil, ShortTimeout)
}

// SetAccessAddress points the BLE correlator at a specific access
// address. Advertising capture uses the shared advertising address.
func (d *Device) SetAccessAddress(aa uint32) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, aa)
	if err := d.Command(CmdSetAccessAddress, 0, 0, data, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.AccessAddress = aa })
	return nil
}

// GetAccessAddress reads the correlator's access address.
func (d *Device) GetAccessAddress() (uint32, error) {
	buf := make([]byte, 4)
	if err := d.requestExact(CmdGetAccessAddress, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	aa := binary.LittleEndian.Uint32(buf)
	d.updateConfig(func(c *Config) { c.AccessAddress = aa })
	return aa, nil
}

// SetCRCVerify tells the firmware whether to drop BLE packets that fail
// the CRC check instead of forwarding them.
func (d *Device) SetCRCVerify(on bool) error {
	if err := d.Command(CmdSetCRCVerify, boolValue(on), 0, nil, ShortTimeout); err != nil {
		return err
	}
	d.updateConfig(func(c *Config) { c.CRCVerify = on })
	return nil
}

// GetCRCVerify reads the firmware CRC filter state.
func (d *Device) GetCRCVerify() (bool, error) {
	on, err := d.requestBool(CmdGetCRCVerify)
	if err != nil {
		return false, err
	}
	d.updateConfig(func(c *Config) { c.CRCVerify = on })
	return on, nil
}

// BTLESetTarget restricts the BLE sniffer to a single advertiser address.
func (d *Device) BTLESetTarget(addr [6]byte) error {
	return d.Command(CmdBTLESetTarget, 0, 0, addr[:], ShortTimeout)
}

// BTLECancelFollow abandons an in-progress connection follow and returns
// the sniffer to the advertising channel.
func (d *Device) BTLECancelFollow() error {
	return d.Command(CmdCancelFollow, 0, 0, nil, ShortTimeout)
}

// StartRxSymbols begins Basic Rate capture. Frames flow on the bulk-IN
// endpoint until Stop.
func (d *Device) StartRxSymbols() error {
	return d.Command(CmdRxSymbols, 0, 0, nil, ShortTimeout)
}

// StartBTLESniff begins BLE advertising capture. With follow set, the
// firmware hops along when it sees a connection request.
func (d *Device) StartBTLESniff(follow bool) error {
	return d.Command(CmdBTLESniffing, boolValue(follow), 0, nil, ShortTimeout)
}

// StartBTLEPromisc begins promiscuous BLE capture on the tuned channel.
func (d *Device) StartBTLEPromisc() error {
	return d.Command(CmdBTLEPromisc, 0, 0, nil, ShortTimeout)
}

// StartSpecan begins a spectrum sweep between two frequencies in MHz,
// inclusive. Samples arrive as spectrum frames on the bulk-IN endpoint.
func (d *Device) StartSpecan(lowMHz, highMHz uint16) error {
	if lowMHz < BaseFrequencyMHz || highMHz > BaseFrequencyMHz+ChannelMax || lowMHz > highMHz {
		return fmt.Errorf("%w: sweep range %d-%d MHz (allowed %d-%d)",
			ErrInvalidParameter, lowMHz, highMHz, BaseFrequencyMHz, BaseFrequencyMHz+ChannelMax)
	}
	return d.Command(CmdSpecan, lowMHz, highMHz, nil, ShortTimeout)
}

// Stop halts whatever capture mode is running. Idle firmware treats it
// as a no-op.
func (d *Device) Stop() error {
	return d.Command(CmdStop, 0, 0, nil, ShortTimeout)
}

// Reset reboots the firmware. The USB handle is invalid afterwards; the
// device re-enumerates within a few seconds.
func (d *Device) Reset() error {
	return d.Command(CmdReset, 0, 0, nil, ShortTimeout)
}
