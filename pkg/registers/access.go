package registers

import "fmt"

// Reader reads a single 16-bit CC2400 register over the vendor command
// channel.
type Reader interface {
	ReadRegister(reg uint8) (uint16, error)
}

// ReadAll snapshots every register in the layout, one command round-trip
// per register. Strobes and the FIFO are skipped: reading them has side
// effects.
func ReadAll(r Reader) (*RegisterMap, error) {
	m := &RegisterMap{}
	for _, reg := range layout {
		value, err := r.ReadRegister(reg.addr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", reg.name, err)
		}
		*reg.sel(m) = value
	}
	return m, nil
}

// RSSIdBm decodes the averaged RSSI value from the RSSI register. The
// top byte is a two's complement dBm reading.
func (m *RegisterMap) RSSIdBm() int8 {
	return int8(m.RSSI >> 8)
}

// FrequencyMHz returns the synthesizer frequency programmed into FSDIV.
// While receiving, the firmware tunes 1 MHz below the target channel to
// account for the IF offset.
func (m *RegisterMap) FrequencyMHz() uint16 {
	return m.FSDIV
}

// SyncWord returns the 32-bit sync word the demodulator correlates
// against. In BLE modes this is the access address of the followed
// connection.
func (m *RegisterMap) SyncWord() uint32 {
	return uint32(m.SYNCH)<<16 | uint32(m.SYNCL)
}
