package registers

// RegisterMap holds a snapshot of the CC2400 configuration and status
// registers. The firmware owns these while a capture mode is running;
// a snapshot is a diagnostic view, not a writable configuration.
type RegisterMap struct {
	// Core control
	MAIN    uint16 `json:"main"`    // 0x00
	FSCTRL  uint16 `json:"fsctrl"`  // 0x01
	FSDIV   uint16 `json:"fsdiv"`   // 0x02
	MDMCTRL uint16 `json:"mdmctrl"` // 0x03
	AGCCTRL uint16 `json:"agcctrl"` // 0x04
	FREND   uint16 `json:"frend"`   // 0x05

	// Status
	RSSI    uint16 `json:"rssi"`    // 0x06
	FREQEST uint16 `json:"freqest"` // 0x07

	// IO and state machine
	IOCFG    uint16 `json:"iocfg"`    // 0x08
	FSMTC    uint16 `json:"fsmtc"`    // 0x0B
	MANAND   uint16 `json:"manand"`   // 0x0D
	FSMSTATE uint16 `json:"fsmstate"` // 0x0E

	// Test and tuning
	ADCTST   uint16 `json:"adctst"`   // 0x0F
	RXBPFTST uint16 `json:"rxbpftst"` // 0x10
	PAMTST   uint16 `json:"pamtst"`   // 0x11
	LMTST    uint16 `json:"lmtst"`    // 0x12
	MANOR    uint16 `json:"manor"`    // 0x13
	MDMTST0  uint16 `json:"mdmtst0"`  // 0x14
	MDMTST1  uint16 `json:"mdmtst1"`  // 0x15

	// Unbuffered (GRMDM) demodulator path
	GRMDM uint16 `json:"grmdm"` // 0x16
	GRDEC uint16 `json:"grdec"` // 0x17

	// Packet engine
	PKTSTATUS uint16 `json:"pktstatus"` // 0x18
	INT       uint16 `json:"int"`       // 0x19

	// Sync word (SYNCH:SYNCL form one 32-bit word)
	SYNCL uint16 `json:"syncl"` // 0x1B
	SYNCH uint16 `json:"synch"` // 0x1C
}

// Register addresses
const (
	RegMAIN      = 0x00
	RegFSCTRL    = 0x01
	RegFSDIV     = 0x02
	RegMDMCTRL   = 0x03
	RegAGCCTRL   = 0x04
	RegFREND     = 0x05
	RegRSSI      = 0x06
	RegFREQEST   = 0x07
	RegIOCFG     = 0x08
	// Reserved 0x09-0x0A
	RegFSMTC     = 0x0B
	RegRESERVED  = 0x0C
	RegMANAND    = 0x0D
	RegFSMSTATE  = 0x0E
	RegADCTST    = 0x0F
	RegRXBPFTST  = 0x10
	RegPAMTST    = 0x11
	RegLMTST     = 0x12
	RegMANOR     = 0x13
	RegMDMTST0   = 0x14
	RegMDMTST1   = 0x15
	RegGRMDM     = 0x16
	RegGRDEC     = 0x17
	RegPKTSTATUS = 0x18
	RegINT       = 0x19
	// Reserved 0x1A
	RegSYNCL     = 0x1B
	RegSYNCH     = 0x1C
)

// Command strobes. Writing any value to one of these addresses triggers
// the named state transition; reading one returns the chip status word,
// so ReadAll leaves them alone.
const (
	RegSXOSCON  = 0x20 // Turn on crystal oscillator
	RegSFSON    = 0x21 // Start and calibrate frequency synthesizer
	RegSRX      = 0x22 // Enable RX
	RegSTX      = 0x23 // Enable TX
	RegSRFOFF   = 0x24 // Exit RX/TX
	RegSXOSCOFF = 0x25 // Turn off crystal oscillator
)

// RegFIFO is the packet FIFO access register. Reading it consumes
// received bytes, so it is never part of a snapshot.
const RegFIFO = 0x70

// layout lists every register ReadAll snapshots, in address order, with
// a selector into the matching RegisterMap field.
var layout = []struct {
	addr uint8
	name string
	sel  func(*RegisterMap) *uint16
}{
	{RegMAIN, "MAIN", func(m *RegisterMap) *uint16 { return &m.MAIN }},
	{RegFSCTRL, "FSCTRL", func(m *RegisterMap) *uint16 { return &m.FSCTRL }},
	{RegFSDIV, "FSDIV", func(m *RegisterMap) *uint16 { return &m.FSDIV }},
	{RegMDMCTRL, "MDMCTRL", func(m *RegisterMap) *uint16 { return &m.MDMCTRL }},
	{RegAGCCTRL, "AGCCTRL", func(m *RegisterMap) *uint16 { return &m.AGCCTRL }},
	{RegFREND, "FREND", func(m *RegisterMap) *uint16 { return &m.FREND }},
	{RegRSSI, "RSSI", func(m *RegisterMap) *uint16 { return &m.RSSI }},
	{RegFREQEST, "FREQEST", func(m *RegisterMap) *uint16 { return &m.FREQEST }},
	{RegIOCFG, "IOCFG", func(m *RegisterMap) *uint16 { return &m.IOCFG }},
	{RegFSMTC, "FSMTC", func(m *RegisterMap) *uint16 { return &m.FSMTC }},
	{RegMANAND, "MANAND", func(m *RegisterMap) *uint16 { return &m.MANAND }},
	{RegFSMSTATE, "FSMSTATE", func(m *RegisterMap) *uint16 { return &m.FSMSTATE }},
	{RegADCTST, "ADCTST", func(m *RegisterMap) *uint16 { return &m.ADCTST }},
	{RegRXBPFTST, "RXBPFTST", func(m *RegisterMap) *uint16 { return &m.RXBPFTST }},
	{RegPAMTST, "PAMTST", func(m *RegisterMap) *uint16 { return &m.PAMTST }},
	{RegLMTST, "LMTST", func(m *RegisterMap) *uint16 { return &m.LMTST }},
	{RegMANOR, "MANOR", func(m *RegisterMap) *uint16 { return &m.MANOR }},
	{RegMDMTST0, "MDMTST0", func(m *RegisterMap) *uint16 { return &m.MDMTST0 }},
	{RegMDMTST1, "MDMTST1", func(m *RegisterMap) *uint16 { return &m.MDMTST1 }},
	{RegGRMDM, "GRMDM", func(m *RegisterMap) *uint16 { return &m.GRMDM }},
	{RegGRDEC, "GRDEC", func(m *RegisterMap) *uint16 { return &m.GRDEC }},
	{RegPKTSTATUS, "PKTSTATUS", func(m *RegisterMap) *uint16 { return &m.PKTSTATUS }},
	{RegINT, "INT", func(m *RegisterMap) *uint16 { return &m.INT }},
	{RegSYNCL, "SYNCL", func(m *RegisterMap) *uint16 { return &m.SYNCL }},
	{RegSYNCH, "SYNCH", func(m *RegisterMap) *uint16 { return &m.SYNCH }},
}

// Name returns the datasheet name for a register address, or "" if the
// address is reserved or outside the snapshot set.
func Name(addr uint8) string {
	for _, reg := range layout {
		if reg.addr == addr {
			return reg.name
		}
	}
	switch addr {
	case RegSXOSCON:
		return "SXOSCON"
	case RegSFSON:
		return "SFSON"
	case RegSRX:
		return "SRX"
	case RegSTX:
		return "STX"
	case RegSRFOFF:
		return "SRFOFF"
	case RegSXOSCOFF:
		return "SXOSCOFF"
	case RegFIFO:
		return "FIFO"
	}
	return ""
}

// Lookup resolves a datasheet register name to its address.
func Lookup(name string) (uint8, bool) {
	for _, reg := range layout {
		if reg.name == name {
			return reg.addr, true
		}
	}
	return 0, false
}

// Field is one register with its decoded name, for ordered display.
type Field struct {
	Addr  uint8  `json:"addr"`
	Name  string `json:"name"`
	Value uint16 `json:"value"`
}

// Fields returns the snapshot contents in register address order.
func (m *RegisterMap) Fields() []Field {
	fields := make([]Field, 0, len(layout))
	for _, reg := range layout {
		fields = append(fields, Field{Addr: reg.addr, Name: reg.name, Value: *reg.sel(m)})
	}
	return fields
}
