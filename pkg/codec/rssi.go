package codec

import "encoding/json"

// Stats aggregates RSSI observations in dBm. The merged average is carried
// as a weighted sum so merging the same observations in any order produces
// the same result.
type Stats struct {
	Max   int8
	Min   int8
	Sum   float64
	Count uint64
}

// StatsFromHeader lifts the per-frame RSSI fields into a mergeable Stats.
// Frames the firmware captured without RSSI sampling yield a zero Stats.
func StatsFromHeader(h Header) Stats {
	if h.RSSICount == 0 {
		return Stats{}
	}
	return Stats{
		Max:   h.RSSIMax,
		Min:   h.RSSIMin,
		Sum:   float64(h.RSSIAvg) * float64(h.RSSICount),
		Count: uint64(h.RSSICount),
	}
}

// Avg returns the count-weighted mean, or 0 for an empty Stats.
func (s Stats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Merge combines two aggregates. Merging is commutative and associative,
// and the zero Stats is the identity.
func (s Stats) Merge(o Stats) Stats {
	if s.Count == 0 {
		return o
	}
	if o.Count == 0 {
		return s
	}
	m := Stats{
		Max:   s.Max,
		Min:   s.Min,
		Sum:   s.Sum + o.Sum,
		Count: s.Count + o.Count,
	}
	if o.Max > m.Max {
		m.Max = o.Max
	}
	if o.Min < m.Min {
		m.Min = o.Min
	}
	return m
}

func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Max   int8    `json:"max"`
		Min   int8    `json:"min"`
		Avg   float64 `json:"avg"`
		Count uint64  `json:"count"`
	}{s.Max, s.Min, s.Avg(), s.Count})
}
