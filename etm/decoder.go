package etm

import (
	"context"

	"swotrace/internal/common"
	"swotrace/logging"
)

// syncZeroRun mirrors the ITM decoder's async-sequence convention: a run
// of zero bytes establishes alignment before packet decoding resumes.
// The real ETMv3/v4 A-sync sequence is out of scope here (§4.5); this is
// the toy framing the interface-level decoder uses to exercise pump,
// on_state and force_sync meaningfully.
const syncZeroRun = 5

// OnState is invoked once per decoded packet with the CPU state as of
// that packet; only the fields named in State.Changed were updated.
type OnState func(State)

// OnReport is invoked for decoder diagnostics independent of CPU state
// (sync acquired, forced resync).
type OnReport func(Report)

// Decoder is the interface-level ETM decoder surface described by §4.5:
// consume a byte buffer, report CPU-state updates and diagnostics via
// callback, support external resync, and treat a wrapped PMRing as a
// forced resync barrier.
//
// Not safe for concurrent use; owned by the single pump thread (§5).
type Decoder struct {
	common.Component

	log    logging.Logger
	synced bool

	zeroRun int
	state   State
}

// New creates an ETMDecoder, initially unsynced.
func New(log logging.Logger) *Decoder {
	d := &Decoder{log: log}
	d.Component.Init("etm")
	return d
}

// Synced reports whether the decoder is currently aligned to the stream.
func (d *Decoder) Synced() bool { return d.synced }

// ForceSync sets or clears synchronisation out of band.
func (d *Decoder) ForceSync(synced bool) {
	d.synced = synced
	d.zeroRun = 0
	if !synced {
		d.state = State{}
	}
}

// NotifyRingWrapped must be called whenever the upstream PMRing wraps in
// running mode: bytes older than the new read pointer were discarded
// mid-packet, so no assumption about instruction-stream continuity
// survives and the decoder must resync before the next decode (§9).
func (d *Decoder) NotifyRingWrapped(onReport OnReport) {
	d.ForceSync(false)
	if onReport != nil {
		onReport(Report{Message: "forced resync: PM ring wrapped"})
	}
}

// Pump decodes bytes, invoking onState for every CPU-state update and
// onReport for diagnostics. It returns ctx.Err() if ctx is cancelled
// mid-buffer, leaving the remainder unconsumed.
func (d *Decoder) Pump(bytes []byte, onState OnState, onReport OnReport, ctx context.Context) error {
	i := 0
	for i < len(bytes) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !d.synced {
			i += d.scanSync(bytes[i:], onReport)
			continue
		}

		consumed := d.decodePacket(bytes[i:], onState)
		if consumed == 0 {
			break
		}
		i += consumed
	}
	return nil
}

func (d *Decoder) scanSync(b []byte, onReport OnReport) int {
	for i, x := range b {
		if x == 0x00 {
			d.zeroRun++
			continue
		}
		if x == 0xFF && d.zeroRun >= syncZeroRun {
			d.zeroRun = 0
			d.synced = true
			if onReport != nil {
				onReport(Report{Message: "synced"})
			}
			return i + 1
		}
		d.zeroRun = 0
	}
	return len(b)
}

// decodePacket consumes one (selector, value) pair, mirroring the fields
// named in §4.5's change-mask enumeration. Only the selector's low five
// bits pick the field; values of those bits beyond the known field count
// are ignored (treated as padding) rather than erroring,
// since the real ETMv3/v4 encoding this stands in for is out of scope.
func (d *Decoder) decodePacket(b []byte, onState OnState) int {
	if len(b) < 2 {
		return 0
	}
	selector, value := b[0], b[1]

	field := fieldForSelector(selector)
	if field == 0 {
		return 2
	}

	d.state.Changed = field
	applyField(&d.state, field, value)

	if onState != nil {
		onState(d.state)
	}
	return 2
}

func fieldForSelector(selector byte) Field {
	idx := selector & 0x1F
	if idx >= 18 {
		return 0
	}
	return Field(1) << idx
}

func applyField(s *State, field Field, value byte) {
	switch field {
	case FieldAddress:
		s.Address = (s.Address << 8) | uint64(value)
	case FieldAtoms:
		s.EAtoms = value >> 4
		s.NAtoms = value & 0x0F
	case FieldDisposition:
		s.Disposition = value
	case FieldVMID:
		s.VMID = uint32(value)
	case FieldContextID:
		s.ContextID = uint32(value)
	case FieldSecure:
		s.Secure = value != 0
	case FieldNonSecureState:
		s.NonSecure = value != 0
	case FieldExceptionEntry:
		s.ExceptionIn = value != 0
	case FieldExceptionExit:
		s.ExceptionOut = value != 0
	case FieldTrigger:
		s.Trigger = value != 0
	case FieldTimestamp:
		s.Timestamp = (s.Timestamp << 8) | uint64(value)
	case FieldCycleCount:
		s.CycleCount = (s.CycleCount << 8) | uint32(value)
	case FieldClockSpeed:
		s.ClockSpeed = uint32(value)
	case FieldISLSIP:
		s.ISLSIP = value != 0
	case FieldAltISA:
		s.AltISA = value != 0
	case FieldHyp:
		s.Hyp = value != 0
	case FieldJazelle:
		s.Jazelle = value != 0
	case FieldThumb:
		s.Thumb = value != 0
	}
}
