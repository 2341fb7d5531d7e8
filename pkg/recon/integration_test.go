package recon_test

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/gotooth/pkg/codec"
	"github.com/herlein/gotooth/pkg/recon"
	"github.com/herlein/gotooth/pkg/stream"
)

// replaySource serves a canned frame sequence over the bulk interface,
// then idles like a quiet radio.
type replaySource struct {
	frames []stream.RawFrame
	next   atomic.Int32
}

func (s *replaySource) BulkIn(ctx context.Context, buf []byte) (int, error) {
	i := int(s.next.Add(1)) - 1
	if i >= len(s.frames) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return copy(buf, s.frames[i][:]), nil
}

// btleCRC mirrors the on-air CRC so the canned frames carry valid
// checksums.
func btleCRC(init uint32, data []byte) uint32 {
	state := init & 0xffffff
	for _, b := range data {
		cur := uint32(b)
		for i := 0; i < 8; i++ {
			next := (state ^ cur) & 1
			cur >>= 1
			state >>= 1
			if next != 0 {
				state |= 1 << 23
				state ^= 0x5a6000
			}
		}
	}
	return state
}

func advFrame(t *testing.T, onAir, ad []byte, clk uint32, avg int8, corruptCRC bool) stream.RawFrame {
	t.Helper()
	data := append(append([]byte(nil), onAir...), ad...)
	pdu := append([]byte{0x00, byte(len(data))}, data...)
	crc := btleCRC(codec.AdvCRCInit, pdu)
	if corruptCRC {
		crc ^= 0x800000
	}

	payload := []byte{0xd6, 0xbe, 0x89, 0x8e}
	payload = append(payload, pdu...)
	payload = append(payload, byte(crc), byte(crc>>8), byte(crc>>16))
	require.LessOrEqual(t, len(payload), codec.PayloadSize, "canned frame overflows payload")

	var f stream.RawFrame
	f[0] = byte(codec.PacketLE)
	f[2] = 37
	binary.LittleEndian.PutUint32(f[4:8], clk)
	f[8] = byte(avg + 4)
	f[9] = byte(avg - 4)
	f[10] = byte(avg)
	f[11] = 8
	copy(f[codec.HeaderSize:], payload)
	return f
}

func specanFrame(channel uint8, max int8) stream.RawFrame {
	var f stream.RawFrame
	f[0] = byte(codec.PacketSpecan)
	f[2] = channel
	f[8] = byte(max)
	f[9] = byte(max - 12)
	f[10] = byte(max - 6)
	f[11] = 8
	return f
}

// TestScanPipeline drives canned advertising traffic through the real
// reader pool, decoder and aggregator, end to end.
func TestScanPipeline(t *testing.T) {
	sensor := []byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11} // 11:22:33:44:55:66
	beacon := []byte{0xee, 0xdd, 0xcc, 0xbb, 0xaa, 0x00} // 00:aa:bb:cc:dd:ee
	nameAD := []byte{0x07, 0x09, 's', 'e', 'n', 's', 'o', 'r'}
	svcAD := []byte{0x03, 0x03, 0x0f, 0x18}

	var junk stream.RawFrame
	junk[0] = 0x7f

	src := &replaySource{frames: []stream.RawFrame{
		junk,
		advFrame(t, sensor, nameAD, 1000, -52, false),
		advFrame(t, beacon, svcAD, 2000, -74, false),
		advFrame(t, sensor, nil, 3000, -50, true), // fails the CRC check
		advFrame(t, sensor, nil, 4000, -54, false),
		advFrame(t, beacon, svcAD, 5000, -70, false),
		advFrame(t, sensor, nameAD, 6000, -48, false),
	}}

	// A single reader keeps the replay order intact, so the first and
	// last seen timestamps are exact.
	sess, err := stream.NewEngine(src, stream.Config{
		PoolSize:    1,
		QueueDepth:  64,
		ReadTimeout: 50 * time.Millisecond,
	}).Start()
	require.NoError(t, err)

	rc := recon.RunConfig{
		Duration: 500 * time.Millisecond,
		Decoder:  codec.Config{VerifyCRC: true, CRCInit: codec.AdvCRCInit},
	}
	sum := recon.Run(context.Background(), sess.Frames(), rc, recon.NewScanAggregator())

	stats, err := sess.Stop()
	require.NoError(t, err)
	sum.Stream = stats

	assert.EqualValues(t, 7, stats.FramesReceived, "every canned frame should be read")
	assert.Zero(t, stats.Truncated)
	assert.Zero(t, stats.Overflowed)

	assert.EqualValues(t, 5, sum.Codec.Decoded)
	assert.EqualValues(t, 1, sum.Codec.Malformed)
	assert.EqualValues(t, 1, sum.Codec.CRCInvalid)

	require.Len(t, sum.Devices, 2)
	bc, sn := sum.Devices[0], sum.Devices[1]

	assert.Equal(t, "00:aa:bb:cc:dd:ee", bc.Address)
	assert.EqualValues(t, 2, bc.Packets)
	assert.Equal(t, []string{"180f"}, bc.Services16)

	assert.Equal(t, "11:22:33:44:55:66", sn.Address)
	assert.EqualValues(t, 3, sn.Packets)
	assert.Equal(t, "sensor", sn.Name)
	assert.Equal(t, 1000*100*time.Nanosecond, sn.FirstSeen)
	assert.Equal(t, 6000*100*time.Nanosecond, sn.LastSeen)
	assert.InDelta(t, -51.33, sn.RSSI.Avg(), 0.01)
}

// TestSweepPipeline replays a sweep and checks the frequency buckets.
func TestSweepPipeline(t *testing.T) {
	var frames []stream.RawFrame
	for round := 0; round < 3; round++ {
		for ch := uint8(0); ch < 3; ch++ {
			level := int8(-80)
			if ch == 1 {
				level = -45 // busy frequency
			}
			frames = append(frames, specanFrame(ch, level))
		}
	}
	src := &replaySource{frames: frames}

	sess, err := stream.NewEngine(src, stream.Config{
		PoolSize:    1,
		QueueDepth:  32,
		ReadTimeout: 50 * time.Millisecond,
	}).Start()
	require.NoError(t, err)
	defer sess.Stop()

	rc := recon.RunConfig{
		Duration: 500 * time.Millisecond,
		Decoder:  codec.Config{SpecanLowMHz: 2402},
	}
	sum := recon.Run(context.Background(), sess.Frames(), rc,
		recon.NewSweepAggregator(recon.DefaultActivityThreshold))

	require.Len(t, sum.Spectrum, 3)
	for i, want := range []uint16{2402, 2403, 2404} {
		assert.Equal(t, want, sum.Spectrum[i].FrequencyMHz)
		assert.EqualValues(t, 3, sum.Spectrum[i].Samples)
	}
	assert.EqualValues(t, 0, sum.Spectrum[0].Active)
	assert.EqualValues(t, 3, sum.Spectrum[1].Active)
	assert.Equal(t, float64(100), sum.Spectrum[1].ActivityPct)
	assert.EqualValues(t, 9, sum.Codec.Decoded)
}
