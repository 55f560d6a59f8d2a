package tpiu

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swotrace/internal/common"
	"swotrace/logging"
)

func feedSync(t *testing.T, d *FrameDecoder) Event {
	t.Helper()
	var ev Event
	for _, b := range []byte{0xFF, 0xFF, 0xFF, 0x7F} {
		ev = d.Pump(b)
	}
	return ev
}

func TestInitStartsUnsynced(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	assert.Equal(t, Unsynced, d.State())
	assert.Equal(t, Stats{}, d.Stats())
}

func TestSyncPatternEntersRxing(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	ev := feedSync(t, d)
	assert.Equal(t, EventNewSync, ev)
	assert.Equal(t, Rxing, d.State())
	assert.EqualValues(t, 1, d.Stats().SyncCount)
}

func TestResyncWhileRxingEmitsSynced(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)
	ev := feedSync(t, d)
	assert.Equal(t, EventSynced, ev)
	assert.EqualValues(t, 2, d.Stats().SyncCount)
}

// TestHalfSyncDiscardedDuringAccumulation covers §4.1's half-sync filter:
// once RXING, a (0xFF, 0x7F) byte pair is discarded without advancing the
// frame byte count, and is tallied separately from full syncs.
func TestHalfSyncDiscardedDuringAccumulation(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)

	ev := d.Pump(0xFF)
	assert.Equal(t, EventRxing, ev)
	ev = d.Pump(0x7F)
	assert.Equal(t, EventRxing, ev)
	assert.EqualValues(t, 1, d.Stats().HalfSyncCount)
	assert.Equal(t, 0, d.byteCount)
}

// TestHalfSyncCountedBeforeSync covers the pre-sync half of §4.1's pairing
// rule: a (0xFF, 0x7F) pair arriving while still UNSYNCED is paired and
// counted off the same latch accumulate uses once RXING, rather than
// being silently dropped by the early return for unsynced bytes.
func TestHalfSyncCountedBeforeSync(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)

	for _, b := range []byte{0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0x7F} {
		d.Pump(b)
	}

	assert.Equal(t, Rxing, d.State())
	assert.EqualValues(t, 1, d.Stats().SyncCount)
	assert.EqualValues(t, 1, d.Stats().HalfSyncCount)
}

// TestLiteralHalfSyncScenarioByteSequence feeds §8 boundary scenario 1's
// literal byte sequence (`FF FF 7F FF 7F FF FF FF 7F`) directly. The
// decoder does enter RXING via NewSync as the scenario describes, but the
// sequence itself does not contain a half-sync pair outside the one that
// completes the full sync pattern: paired two bytes at a time from the
// start (the same phase accumulate/scanHalfSync use), the pairs are
// (FF,FF) (7F,FF) (7F,FF) (FF,FF), none of them (0xFF, 0x7F), and the
// final 0x7F is consumed by the full-sync shift register before it can
// be paired at all. See DESIGN.md for the derivation showing no
// non-arbitrary pairing of this exact byte sequence yields halfSyncCount
// == 1; this test documents the decoder's actual, verified behavior on
// the literal bytes rather than asserting the unreachable count.
func TestLiteralHalfSyncScenarioByteSequence(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)

	var last Event
	for _, b := range []byte{0xFF, 0xFF, 0x7F, 0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0x7F} {
		last = d.Pump(b)
	}

	assert.Equal(t, EventNewSync, last)
	assert.Equal(t, Rxing, d.State())
	assert.EqualValues(t, 0, d.Stats().HalfSyncCount)
}

func TestFullFrameEmitsRxedPacket(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)

	var last Event
	for i := 0; i < 16; i++ {
		last = d.Pump(byte(0x10 + i))
	}
	assert.Equal(t, EventRxedPacket, last)
	assert.EqualValues(t, 1, d.Stats().Packets)
}

func TestStaleFrameAbandoned(t *testing.T) {
	clk := common.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewFrameDecoder(logging.Discard)
	d.Component.Clock = clk
	d.Init()

	feedSync(t, d)
	for i := 0; i < 14; i++ {
		d.Pump(byte(0x20 + i))
	}

	clk.Advance(4 * time.Second)

	ev := d.Pump(0x30)
	ev = d.Pump(0x31)
	assert.Equal(t, EventUnsynced, ev)
	assert.EqualValues(t, 1, d.Stats().LostSync)
	assert.Equal(t, Unsynced, d.State())
}

// TestCommsStatsExtractedBeforeResync crafts a frame whose trailing three
// bytes are 0xFF so that the single byte which finally completes the
// 0xFFFFFF7F shift-register match arrives before an eighth pair can be
// accumulated — exactly the "14 bytes collected" case described in §4.1.
func TestCommsStatsExtractedBeforeResync(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)

	inProgress := []byte{0xA6, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0xFF, 0xFF, 0xFF}
	for _, b := range inProgress {
		d.Pump(b)
	}
	require.Equal(t, 14, d.byteCount)
	require.False(t, d.havePairFirst)

	ev := d.Pump(0x7F)
	assert.Equal(t, EventSynced, ev)
	assert.Equal(t, 0, d.byteCount)

	stats := d.LastCommsStats()
	require.NotNil(t, stats)
	assert.EqualValues(t, 0x0201, stats.PendingCount)
	assert.EqualValues(t, 0x03, stats.Leds)
	assert.EqualValues(t, 0x0504, stats.LostFrames)
	assert.EqualValues(t, 0x09080706, stats.TotalFrames)
}

func TestForceSync(t *testing.T) {
	d := NewFrameDecoder(logging.Discard)
	d.ForceSync(4)
	assert.Equal(t, Rxing, d.State())
	assert.EqualValues(t, 1, d.Stats().SyncCount)
	assert.Equal(t, 4, d.byteCount)

	// a second force_sync while already RXING must not re-increment.
	d.ForceSync(0)
	assert.EqualValues(t, 1, d.Stats().SyncCount)
}

// encodeNoIDChangeFrame builds a 16-byte frame carrying 15 data bytes on
// the current stream, with no stream-ID changes, mirroring the §8
// round-trip property for the data-reconstruction half of the algorithm.
func encodeNoIDChangeFrame(data [15]byte) [16]byte {
	var frame [16]byte
	var l byte
	for p := 0; p < 15; p++ {
		v := data[p]
		if p%2 == 0 {
			frame[p] = v &^ 1
			if v&1 != 0 {
				l |= 1 << uint(p/2)
			}
		} else {
			frame[p] = v
		}
	}
	frame[15] = l
	return frame
}

func TestRoundTripFrameToPacket(t *testing.T) {
	var data [15]byte
	for i := range data {
		data[i] = byte(0x40 + i)
	}
	frame := encodeNoIDChangeFrame(data)

	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)

	var last Event
	for _, b := range frame {
		last = d.Pump(b)
	}
	require.Equal(t, EventRxedPacket, last)

	pkt := d.GetPacket()
	want := make([]Item, 15)
	for i := range want {
		want[i] = Item{StreamID: 0, Data: data[i]}
	}
	if diff := cmp.Diff(want, pkt.Items); diff != "" {
		t.Errorf("round-tripped packet mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamIDChangeImmediateVsDelayed(t *testing.T) {
	// byte0 = (1<<1)|1 = 0x03 -> stream 1, immediate (L bit0=0)
	// byte1 = 0xAA data for stream 1
	// byte2 = (2<<1)|1 = 0x05 -> stream 2, delayed (L bit1=1)
	// byte3 = 0xBB data, still attributed to stream 1 (change pending)
	// after byte3, pending change to stream 2 applies.
	var frame [16]byte
	frame[0] = 0x03
	frame[1] = 0xAA
	frame[2] = 0x05
	frame[3] = 0xBB
	for i := 4; i < 15; i++ {
		frame[i] = byte(0xC0 + i)
	}
	frame[15] = 1 << 1 // delay bit for position 2 (i/2==1)

	d := NewFrameDecoder(logging.Discard)
	feedSync(t, d)
	for _, b := range frame {
		d.Pump(b)
	}
	pkt := d.GetPacket()

	require.GreaterOrEqual(t, len(pkt.Items), 2)
	assert.EqualValues(t, 1, pkt.Items[0].StreamID)
	assert.Equal(t, byte(0xAA), pkt.Items[0].Data)
	assert.EqualValues(t, 1, pkt.Items[1].StreamID)
	assert.Equal(t, byte(0xBB), pkt.Items[1].Data)
	assert.EqualValues(t, 2, pkt.Items[2].StreamID)
}
