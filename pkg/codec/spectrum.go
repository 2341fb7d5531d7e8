package codec

// SpectrumPacket is one spectrum sweep sample.
type SpectrumPacket struct {
	Header
	FrequencyMHz uint16
	RSSI         Stats
}

// parseSpecan maps a sweep frame to an absolute frequency. The firmware
// reports the channel as an offset from the low edge of the sweep range.
func parseSpecan(h Header, lowMHz uint16) *SpectrumPacket {
	return &SpectrumPacket{
		Header:       h,
		FrequencyMHz: lowMHz + uint16(h.Channel),
		RSSI:         StatsFromHeader(h),
	}
}
