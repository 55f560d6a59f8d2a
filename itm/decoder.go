package itm

import (
	"swotrace/internal/common"
	"swotrace/logging"
)

// syncZeroRun is the minimum run of 0x00 bytes (per §4.2/§6) that must
// precede a 0x80 byte to constitute a valid sync sequence.
const syncZeroRun = 5

type collectMode int

const (
	collectFixed collectMode = iota
	collectContinuation
)

// Decoder implements the ITM packet state machine described in §4.2: a
// header byte classifies the message, then zero or more payload bytes are
// collected before a typed Message is emitted.
//
// Not safe for concurrent use; owned by the single pump thread (§5).
type Decoder struct {
	common.Component

	state  State
	log    logging.Logger
	strict bool

	zeroRun int

	mode        collectMode
	payloadLen  int
	payload     []byte
	pendingKind Kind
	pendingAddr uint8
	headerTS    uint64

	runningTS uint64

	lastMsg Message
	stats   Stats
}

// NewDecoder creates an ITMDecoder. forceITMSync true starts the decoder
// in UNSYNCED, requiring a real sync sequence before any packet is
// accepted; false starts it IDLE.
func NewDecoder(log logging.Logger, forceITMSync bool) *Decoder {
	d := &Decoder{log: log, strict: true}
	d.Component.Init("itm")
	d.Init(forceITMSync)
	return d
}

// Init resets the decoder. See NewDecoder for the forceITMSync semantics.
func (d *Decoder) Init(forceITMSync bool) {
	if forceITMSync {
		d.state = Unsynced
	} else {
		d.state = Idle
	}
	d.zeroRun = 0
	d.payload = d.payload[:0]
	d.runningTS = 0
	d.stats = Stats{}
}

func (d *Decoder) State() State  { return d.state }
func (d *Decoder) Stats() Stats  { return d.stats }
func (d *Decoder) Last() Message { return d.lastMsg }

// ForceSync lets an upstream resync (e.g. the FrameDecoder newly
// synchronising) drive this decoder's sync state directly.
func (d *Decoder) ForceSync(synced bool) Event {
	if synced {
		wasUnsynced := d.state == Unsynced
		d.state = Idle
		d.payload = d.payload[:0]
		if wasUnsynced {
			d.stats.SyncCount++
		}
		return EventSynced
	}
	d.state = Unsynced
	d.zeroRun = 0
	d.stats.LostSync++
	return EventUnsynced
}

// Pump feeds one byte into the decoder.
func (d *Decoder) Pump(b byte) Event {
	switch d.state {
	case Unsynced:
		return d.scanSync(b)
	case Idle:
		return d.consumeHeader(b)
	default:
		return d.consumePayload(b)
	}
}

func (d *Decoder) scanSync(b byte) Event {
	if b == 0x00 {
		d.zeroRun++
		return EventNone
	}
	if b == 0x80 && d.zeroRun >= syncZeroRun {
		d.zeroRun = 0
		d.state = Idle
		d.stats.SyncCount++
		return EventSynced
	}
	d.zeroRun = 0
	return EventNone
}

// consumeHeader classifies a header byte per §4.2. The precedence below
// resolves the header table into disjoint, exhaustive cases by following
// the real ITM bit layout (software/hardware distinguished by bit 2,
// extension/reserved carrying a zero size field) rather than the table's
// literal wording, which double-counts the size-field condition; see
// DESIGN.md.
func (d *Decoder) consumeHeader(h byte) Event {
	d.headerTS = d.runningTS

	switch {
	case h == 0x00:
		return EventNone

	case h == 0x70:
		d.emit(Message{Kind: KindOverflow})
		d.stats.Overflows++
		return EventOverflow

	case h == 0x15:
		d.emit(Message{Kind: KindPCSample, Sleep: true})
		return EventPacketRxed

	case (h&0x0F) == 0x00 && (h&0x80) != 0 && ((h>>4)&0x7) != 0:
		d.beginFixed(KindTimestamp, 0, timestampLen((h>>4)&0x7))
		d.pendingAddr = (h >> 4) & 0x7
		return EventNone

	case (h & 0x07) == 0x04:
		return d.badHeader()

	case (h&0x04) == 0x04 && (h&0x03) != 0:
		addr := h >> 3
		d.beginFixed(KindHardware(addr), addr, sizeCodeLen(h&0x03))
		return EventNone

	case (h&0x04) == 0 && (h&0x03) != 0:
		d.beginFixed(KindSoftware, h>>3, sizeCodeLen(h&0x03))
		return EventNone

	default:
		return d.badHeader()
	}
}

// KindHardware maps a hardware-source discriminator address to the
// message kind it produces; unmapped discriminators are decoded as the
// generic data-trace DataAccessWP/DataRWWP/DataOffsetWP family inside
// completePayload once the payload is in hand.
func KindHardware(addr uint8) Kind {
	switch addr {
	case 0:
		return KindDWTEvent
	case 1:
		return KindException
	case 2:
		return KindPCSample
	case 3:
		return KindNISync
	default:
		return KindDataRWWP // placeholder; refined in completePayload for addr 8..15
	}
}

func sizeCodeLen(size byte) int {
	switch size {
	case 1:
		return 1
	case 2:
		return 2
	default:
		return 4
	}
}

// timestampLen returns the maximum continuation-byte budget for a
// timestamp payload; the real length is however many bytes carry the
// continuation bit before one doesn't (up to 4, §4.2).
func timestampLen(tsField byte) int { return 4 }

func (d *Decoder) beginFixed(kind Kind, addr uint8, length int) {
	d.pendingKind = kind
	d.pendingAddr = addr
	d.payloadLen = length
	d.payload = d.payload[:0]
	if kind == KindTimestamp {
		d.mode = collectContinuation
	} else {
		d.mode = collectFixed
	}
	d.state = Collecting
}

func (d *Decoder) badHeader() Event {
	d.stats.BadHeaders++
	if d.strict {
		return d.ForceSync(false)
	}
	return EventError
}

func (d *Decoder) consumePayload(b byte) Event {
	d.payload = append(d.payload, b)

	done := false
	switch d.mode {
	case collectContinuation:
		done = (b&0x80) == 0 || len(d.payload) >= d.payloadLen
	default:
		done = len(d.payload) >= d.payloadLen
	}
	if !done {
		return EventNone
	}

	d.state = Idle
	return d.completePayload()
}

func le32(b []byte) uint32 {
	var v uint32
	for i, x := range b {
		if i >= 4 {
			break
		}
		v |= uint32(x) << (8 * uint(i))
	}
	return v
}

// continuation7 accumulates the 7-bit payload groups of a timestamp
// packet MSB-first: the example in §8 ("header 0xD0 then 0x81 0x02 ->
// timeInc (0x01<<7)|0x02") places the first payload byte's low 7 bits in
// the most significant position, not the least.
func continuation7(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = (v << 7) | uint32(x&0x7F)
	}
	return v
}

// completePayload builds the typed Message once a packet's payload bytes
// have all arrived, per the per-kind field layouts in §3.
func (d *Decoder) completePayload() Event {
	msg := Message{Kind: d.pendingKind, Timestamp: d.headerTS}

	switch d.pendingKind {
	case KindSoftware:
		msg.SrcAddr = d.pendingAddr
		msg.Len = uint8(d.payloadLen)
		msg.Value = le32(d.payload)

	case KindTimestamp:
		msg.TimeInc = continuation7(d.payload)
		msg.TimeStatus = timestampStatus(d.pendingAddr)
		d.runningTS += uint64(msg.TimeInc)

	case KindException:
		if d.payloadLen != 2 {
			return d.badHeader()
		}
		v := uint16(d.payload[0]) | uint16(d.payload[1])<<8
		msg.ExceptionNumber = v & 0x1FF
		switch (v >> 9) & 0x3 {
		case 1:
			msg.EventType = ExceptionEnter
		case 2:
			msg.EventType = ExceptionExit
		case 3:
			msg.EventType = ExceptionResume
		default:
			return d.badHeader()
		}

	case KindPCSample:
		msg.PC = le32(d.payload)

	case KindDWTEvent:
		if len(d.payload) > 0 {
			msg.DWT = DWTBits(d.payload[0] & 0x3F)
		}

	case KindNISync:
		v := le32(d.payload)
		msg.NIType = uint8(v & 0xFF)
		msg.NIAddr = (v >> 8) & 0xFFFFFF

	default:
		// addr 8..15: data trace family, disambiguated by discriminator
		// low bit and payload size (see DESIGN.md).
		v := d.pendingAddr - 8
		comparator := v >> 1
		sub := v & 1
		msg.Comparator = comparator
		switch d.payloadLen {
		case 2:
			msg.Kind = KindDataOffsetWP
			msg.Offset = uint16(d.payload[0]) | uint16(d.payload[1])<<8
		case 4:
			value := le32(d.payload)
			if sub == 0 {
				msg.Kind = KindDataAccessWP
				msg.Data = value
			} else {
				msg.Kind = KindDataRWWP
				msg.IsWrite = value&(1<<31) != 0
				msg.Data = value &^ (1 << 31)
			}
		default:
			msg.Kind = KindDataOffsetWP
			msg.Offset = uint16(d.payload[0])
		}
	}

	d.emit(msg)
	return EventPacketRxed
}

// timestampStatus maps the header's 3-bit TS field onto the four §3
// variants. The spec's worked example (header 0xD0, TS field 5) calls
// the result "delayed_ts (say)" — hedged, not binding — so this mapping
// is chosen to agree with that example while staying a clean, total
// function of the field; see DESIGN.md.
func timestampStatus(tsField uint8) TimeStatus {
	switch tsField % 4 {
	case 1:
		return TimeDelayedTS
	case 2:
		return TimeDelayedPkt
	case 3:
		return TimeDelayedBoth
	default:
		return TimeExact
	}
}

func (d *Decoder) emit(m Message) {
	d.lastMsg = m
	d.stats.Packets++
	if d.log != nil {
		d.log.Logf(common.SeverityDebug, d.Name, "itm packet %s", m)
	}
}
