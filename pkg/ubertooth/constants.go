package ubertooth

import "time"

// USB Device Identifiers
const (
	VendorID  = 0x1D50
	ProductID = 0x6002 // Ubertooth One

	// Bootloader/DFU product ID (not handled here, listed for enumeration)
	ProductIDBootloader = 0x6000
)

// USB Endpoint Configuration
const (
	DataInAddr  = 0x82 // Bulk IN (device to host)
	DataOutAddr = 0x05 // Bulk OUT (host to device)

	DataInEndpointNum  = 2 // endpoint number of 0x82
	DataOutEndpointNum = 5 // endpoint number of 0x05

	FrameSize   = 64 // full raw frame on the bulk endpoint
	HeaderSize  = 14 // fixed header within a frame
	PayloadSize = 50 // payload bytes after the header
)

// USB Request Types (vendor requests on endpoint 0)
const (
	RequestTypeOut = 0x40 // host to device
	RequestTypeIn  = 0xC0 // device to host
)

// USB Timeouts
const (
	DefaultTimeout = 20000 * time.Millisecond
	ShortTimeout   = 1000 * time.Millisecond
)

// Command opcodes. These are the vendor bRequest values understood by the
// firmware; the table is closed (0..73).
const (
	CmdPing             = 0
	CmdRxSymbols        = 1
	CmdTxSymbols        = 2
	CmdGetUSRLED        = 3
	CmdSetUSRLED        = 4
	CmdGetRXLED         = 5
	CmdSetRXLED         = 6
	CmdGetTXLED         = 7
	CmdSetTXLED         = 8
	CmdGet1V8           = 9
	CmdSet1V8           = 10
	CmdGetChannel       = 11
	CmdSetChannel       = 12
	CmdReset            = 13
	CmdGetSerial        = 14
	CmdGetPartNum       = 15
	CmdGetPAEN          = 16
	CmdSetPAEN          = 17
	CmdGetHGM           = 18
	CmdSetHGM           = 19
	CmdTxTest           = 20
	CmdStop             = 21
	CmdGetMod           = 22
	CmdSetMod           = 23
	CmdSetISP           = 24
	CmdFlash            = 25
	CmdBootloaderFlash  = 26
	CmdSpecan           = 27
	CmdGetPALevel       = 28
	CmdSetPALevel       = 29
	CmdRepeater         = 30
	CmdRangeTest        = 31
	CmdRangeCheck       = 32
	CmdGetRevNum        = 33
	CmdLEDSpecan        = 34
	CmdGetBoardID       = 35
	CmdSetSquelch       = 36
	CmdGetSquelch       = 37
	CmdSetBDAddr        = 38
	CmdStartHopping     = 39
	CmdSetClock         = 40
	CmdGetClock         = 41
	CmdBTLESniffing     = 42
	CmdGetAccessAddress = 43
	CmdSetAccessAddress = 44
	CmdDoSomething      = 45
	CmdDoSomethingReply = 46
	CmdGetCRCVerify     = 47
	CmdSetCRCVerify     = 48
	CmdPoll             = 49
	CmdBTLEPromisc      = 50
	CmdSetAFHMap        = 51
	CmdClearAFHMap      = 52
	CmdReadRegister     = 53
	CmdBTLESlave        = 54
	CmdGetCompileInfo   = 55
	CmdBTLESetTarget    = 56
	CmdBTLEPhy          = 57
	CmdWriteRegister    = 58
	CmdJamMode          = 59
	CmdEgo              = 60
	CmdAFH              = 61
	CmdHop              = 62
	CmdTrimClock        = 63
	CmdGetAPIVersion    = 64
	CmdWriteRegisters   = 65
	CmdReadAllRegisters = 66
	CmdRxGeneric        = 67
	CmdTxGenericPacket  = 68
	CmdFixClockDrift    = 69
	CmdCancelFollow     = 70
	CmdLESetAdvData     = 71
	CmdRfcatSubcmd      = 72
	CmdXmas             = 73
)

// Modulation selects the radio demodulator.
type Modulation uint8

const (
	ModBTBasicRate Modulation = 0 // Bluetooth BR/EDR
	ModBTLowEnergy Modulation = 1 // Bluetooth Low Energy
	ModFHSS        Modulation = 2 // 802.11 FHSS
	ModNone        Modulation = 3
)

// String returns the human-readable modulation name.
func (m Modulation) String() string {
	switch m {
	case ModBTBasicRate:
		return "BR"
	case ModBTLowEnergy:
		return "BLE"
	case ModFHSS:
		return "FHSS"
	case ModNone:
		return "none"
	}
	return "unknown"
}

// Valid reports whether m is a member of the known enum.
func (m Modulation) Valid() bool {
	return m <= ModNone
}

// Channel limits. Channel k tunes 2402+k MHz; 0..78 covers the full
// 2.4 GHz ISM band the radio can reach.
const (
	ChannelMin = 0
	ChannelMax = 78

	BaseFrequencyMHz = 2402
)

// FrequencyMHz returns the carrier frequency a channel index tunes to.
func FrequencyMHz(channel uint8) uint16 {
	return BaseFrequencyMHz + uint16(channel)
}

// BLE advertising channel indexes and the shared advertising access address.
const (
	BLEAdvChannel37 = 37
	BLEAdvChannel38 = 38
	BLEAdvChannel39 = 39

	BLEAdvAccessAddress = 0x8E89BED6
)

// Power amplifier levels. SetPALevel accepts 0..7; PALevelDBm maps each
// level to the approximate CC2400 output power.
const (
	PALevelMin = 0
	PALevelMax = 7
)

// PALevelDBm holds the estimated output power in dBm per PA level.
var PALevelDBm = [8]float64{-25, -20, -15, -10, -6, -3, -1.5, 0}

// Squelch limits (dBm). Signal below the threshold is ignored by the
// firmware's carrier-sense paths.
const (
	SquelchMin     = -120
	SquelchMax     = 0
	DefaultSquelch = -90
)

// Board IDs reported by CmdGetBoardID.
const (
	BoardUbertoothZero = 0
	BoardUbertoothOne  = 1
	BoardTC13Badge     = 2
)

// BoardName returns the marketing name for a board ID.
func BoardName(id uint8) string {
	switch id {
	case BoardUbertoothZero:
		return "Ubertooth Zero"
	case BoardUbertoothOne:
		return "Ubertooth One"
	case BoardTC13Badge:
		return "TC13 Badge"
	}
	return "unknown"
}

// Jam modes (command-table shape only; no transmit semantics implemented).
const (
	JamNone       = 0
	JamOnce       = 1
	JamContinuous = 2
)

// Reconnection policy bounds.
const (
	ReconnectAttempts = 3
	ReconnectBackoff  = 500 * time.Millisecond
)

// CommandRetries is how many extra attempts a timed-out command round-trip
// gets before the timeout is surfaced.
const CommandRetries = 2
