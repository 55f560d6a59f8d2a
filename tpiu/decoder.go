package tpiu

import (
	"time"

	"swotrace/internal/common"
	"swotrace/logging"
)

// fullSyncPattern is the 32-bit value the rolling shift register takes
// when the last four bytes on the wire were 0xFF 0xFF 0xFF 0x7F.
const fullSyncPattern = uint32(0xFFFFFF7F)

// staleFrameTimeout is the §4.1 / §5 limit: an in-progress frame spanning
// this long since the last completed frame is abandoned as stale.
const staleFrameTimeout = 3 * time.Second

type pendingStreamChange struct {
	active    bool
	newStream uint8
}

// FrameDecoder decodes the TPIU byte stream into demultiplexed
// (stream_id, data) items, one physical 16-byte frame at a time.
//
// It is not safe for concurrent use: per §5, all decoder state is owned
// by a single pump thread.
type FrameDecoder struct {
	common.Component

	state State
	log   logging.Logger

	shiftReg uint32

	byteCount     int
	havePairFirst bool
	pairFirst     byte
	frameBuf      [FrameSize]byte

	lastPacket time.Time

	currentStream uint8
	pending       pendingStreamChange

	lastCommsStats *CommsStats

	stats Stats
}

// NewFrameDecoder creates a FrameDecoder in the UNSYNCED state.
func NewFrameDecoder(log logging.Logger) *FrameDecoder {
	d := &FrameDecoder{log: log}
	d.Component.Init("tpiu")
	d.Init()
	return d
}

// Init resets the decoder to its power-on state: UNSYNCED, stats zeroed,
// sync shift register zeroed.
func (d *FrameDecoder) Init() {
	d.state = Unsynced
	d.shiftReg = 0
	d.byteCount = 0
	d.havePairFirst = false
	d.currentStream = 0
	d.pending = pendingStreamChange{}
	d.lastCommsStats = nil
	d.stats = Stats{}
	d.lastPacket = d.Now()
}

// State returns the current synchronisation state.
func (d *FrameDecoder) State() State { return d.state }

// Stats returns a snapshot of the running counters.
func (d *FrameDecoder) Stats() Stats { return d.stats }

// LastCommsStats returns the most recently decoded CommsStats side-channel
// frame, or nil if none has been seen.
func (d *FrameDecoder) LastCommsStats() *CommsStats { return d.lastCommsStats }

// ForceSync forces the decoder into RXING at the given byte offset into a
// frame, bypassing the automatic sync-pattern search. Used by callers that
// have independently established synchronisation (e.g. the start of a
// capture file known to be frame-aligned).
func (d *FrameDecoder) ForceSync(offset int) {
	wasUnsynced := d.state == Unsynced
	d.state = Rxing
	d.byteCount = offset
	d.havePairFirst = false
	if wasUnsynced {
		d.stats.SyncCount++
	}
	d.lastPacket = d.Now()
}

// Pump feeds one byte into the decoder and returns the event it produced.
func (d *FrameDecoder) Pump(b byte) Event {
	d.shiftReg = (d.shiftReg << 8) | uint32(b)

	if d.shiftReg == fullSyncPattern {
		return d.handleSync()
	}

	if d.state == Unsynced {
		d.scanHalfSync(b)
		return EventNone
	}

	return d.accumulate(b)
}

// scanHalfSync runs the pre-sync half of §4.1's byte-pairing rule: while
// still UNSYNCED, bytes are paired two at a time off the same
// pairFirst/havePairFirst latch accumulate uses once RXING, so a
// (0xFF, 0x7F) half-sync occurring before the decoder locks onto the
// full sync pattern is still counted instead of silently dropped.
// handleSync clears the latch on every sync, so pairing always restarts
// phase-aligned with the start of a frame.
func (d *FrameDecoder) scanHalfSync(b byte) {
	if !d.havePairFirst {
		d.pairFirst = b
		d.havePairFirst = true
		return
	}
	d.havePairFirst = false
	if d.pairFirst == 0xFF && b == 0x7F {
		d.stats.HalfSyncCount++
	}
}

// handleSync processes detection of the four-byte sync pattern on the
// wire. Per §4.1, a CommsStats frame in progress is salvaged before the
// transition discards it.
func (d *FrameDecoder) handleSync() Event {
	ev := EventNewSync
	if d.state == Rxing {
		ev = EventSynced
	}

	if d.state == Rxing && d.byteCount == 14 && d.frameBuf[0] == 0xA6 {
		d.extractCommsStats()
	}

	d.stats.SyncCount++
	d.state = Rxing
	d.byteCount = 0
	d.havePairFirst = false
	d.lastPacket = d.Now()
	return ev
}

// accumulate implements the §4.1 "Frame accumulation" pairing rule while
// in RXING: bytes arrive in pairs, half-syncs are filtered, and a
// completed 16-byte frame is checked for staleness.
func (d *FrameDecoder) accumulate(b byte) Event {
	if !d.havePairFirst {
		d.pairFirst = b
		d.havePairFirst = true
		return EventRxing
	}

	d.havePairFirst = false
	if d.pairFirst == 0xFF && b == 0x7F {
		d.stats.HalfSyncCount++
		return EventRxing
	}

	if d.byteCount+1 >= FrameSize {
		return EventError
	}
	d.frameBuf[d.byteCount] = d.pairFirst
	d.frameBuf[d.byteCount+1] = b
	d.byteCount += 2

	if d.byteCount < FrameSize {
		return EventRxing
	}

	now := d.Now()
	diff := now.Sub(d.lastPacket)
	if diff >= staleFrameTimeout {
		d.state = Unsynced
		d.stats.LostSync++
		d.byteCount = 0
		if d.log != nil {
			d.log.Logf(common.SeverityWarning, d.Name, "stale frame abandoned after %s", diff)
		}
		return EventUnsynced
	}

	d.lastPacket = now
	d.byteCount = 0
	d.stats.Packets++
	return EventRxedPacket
}

// extractCommsStats parses the pendingCount/leds/lostFrames/totalFrames
// fields (little-endian) from a 14-byte in-progress frame whose first
// byte is the 0xA6 marker.
func (d *FrameDecoder) extractCommsStats() {
	buf := d.frameBuf[:14]
	d.lastCommsStats = &CommsStats{
		PendingCount: uint16(buf[1]) | uint16(buf[2])<<8,
		Leds:         buf[3],
		LostFrames:   uint16(buf[4]) | uint16(buf[5])<<8,
		TotalFrames:  uint32(buf[6]) | uint32(buf[7])<<8 | uint32(buf[8])<<16 | uint32(buf[9])<<24,
	}
}

// GetPacket performs the §4.1 "Frame → packet transformation" on the most
// recently completed frame. It is only valid immediately after Pump
// returned EventRxedPacket, and must be called before the next Pump call
// that would overwrite the frame scratch buffer.
func (d *FrameDecoder) GetPacket() Packet {
	frame := d.frameBuf
	l := frame[15]
	pkt := Packet{Items: make([]Item, 0, FrameSize-1)}

	appendData := func(data byte) {
		pkt.Items = append(pkt.Items, Item{StreamID: d.currentStream, Data: data})
		if d.pending.active {
			d.currentStream = d.pending.newStream
			d.pending = pendingStreamChange{}
		}
	}

	for i := 0; i < FrameSize-1; i += 2 {
		bit := (l >> uint(i/2)) & 1
		b0 := frame[i]
		if b0&1 == 1 {
			newStream := b0 >> 1
			if bit == 0 {
				d.currentStream = newStream
			} else {
				d.pending = pendingStreamChange{active: true, newStream: newStream}
			}
		} else {
			recon := (b0 &^ 1) | bit
			appendData(recon)
		}

		if i < FrameSize-2 {
			appendData(frame[i+1])
		}
	}

	return pkt
}
