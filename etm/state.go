// Package etm exposes the interface-level surface for decoding an
// instruction-flow (Embedded Trace Macrocell) stream, per §4.5. The
// detailed ETMv3/v4 packet encoding is out of scope; this package
// defines the CPU-state struct, its change mask, and the pump/resync
// surface a full decoder would implement underneath.
package etm

// Field is one bit of the CPU-state change mask: which fields of a
// State were updated by the packet currently being decoded. Named the
// way the upstream ARM reference element's flag bits are, but scoped to
// what ETMDecoder must report at the interface level (§4.5).
type Field uint32

const (
	FieldAddress Field = 1 << iota
	FieldAtoms
	FieldDisposition
	FieldVMID
	FieldContextID
	FieldSecure
	FieldNonSecureState
	FieldExceptionEntry
	FieldExceptionExit
	FieldTrigger
	FieldTimestamp
	FieldCycleCount
	FieldClockSpeed
	FieldISLSIP
	FieldAltISA
	FieldHyp
	FieldJazelle
	FieldThumb
)

// State is the packed CPU-state struct surfaced to on_state callbacks.
// Changed reports, via a bitmask, which fields the packet just decoded
// actually updated; fields not in Changed retain their previous value
// and must not be treated as freshly reported.
type State struct {
	Changed Field

	Address      uint64
	EAtoms       uint8
	NAtoms       uint8
	Disposition  uint8
	VMID         uint32
	ContextID    uint32
	Secure       bool
	NonSecure    bool
	ExceptionIn  bool
	ExceptionOut bool
	Trigger      bool
	Timestamp    uint64
	CycleCount   uint32
	ClockSpeed   uint32
	ISLSIP       bool
	AltISA       bool
	Hyp          bool
	Jazelle      bool
	Thumb        bool
}

// Has reports whether f is set in the state's change mask.
func (s State) Has(f Field) bool { return s.Changed&f != 0 }

// Report carries out-of-band decoder diagnostics (sync acquired, a
// forced resync) to on_report, independent of CPU-state updates.
type Report struct {
	Message string
}
