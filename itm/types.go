// Package itm implements the Instrumentation Trace Macrocell packet
// decoder: a header-byte-driven, variable-length state machine that turns
// a demultiplexed byte stream into typed ITM messages. See §3 and §4.2 of
// the design.
package itm

import "fmt"

// State is the ITMDecoder's synchronisation state.
type State int

const (
	Unsynced State = iota
	Idle
	Collecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Collecting:
		return "COLLECTING"
	default:
		return "UNSYNCED"
	}
}

// Event is returned by every Pump call.
type Event int

const (
	EventNone Event = iota
	EventSynced
	EventUnsynced
	EventOverflow
	EventError
	EventPacketRxed
)

func (e Event) String() string {
	switch e {
	case EventSynced:
		return "Synced"
	case EventUnsynced:
		return "Unsynced"
	case EventOverflow:
		return "Overflow"
	case EventError:
		return "Error"
	case EventPacketRxed:
		return "PacketRxed"
	default:
		return "None"
	}
}

// Kind tags the ITMMessage variant, per the §3 data model table.
type Kind int

const (
	KindSoftware Kind = iota
	KindTimestamp
	KindException
	KindPCSample
	KindDWTEvent
	KindDataRWWP
	KindDataAccessWP
	KindDataOffsetWP
	KindNISync
	KindOverflow
	KindError
	KindUnsynced
)

func (k Kind) String() string {
	switch k {
	case KindSoftware:
		return "Software"
	case KindTimestamp:
		return "Timestamp"
	case KindException:
		return "Exception"
	case KindPCSample:
		return "PCSample"
	case KindDWTEvent:
		return "DWTEvent"
	case KindDataRWWP:
		return "DataRWWP"
	case KindDataAccessWP:
		return "DataAccessWP"
	case KindDataOffsetWP:
		return "DataOffsetWP"
	case KindNISync:
		return "NISync"
	case KindOverflow:
		return "Overflow"
	case KindError:
		return "Error"
	default:
		return "Unsynced"
	}
}

// TimeStatus classifies a Timestamp message's relationship to the message
// stream it annotates (§3).
type TimeStatus int

const (
	TimeExact TimeStatus = iota
	TimeDelayedTS
	TimeDelayedPkt
	TimeDelayedBoth
)

func (t TimeStatus) String() string {
	switch t {
	case TimeExact:
		return "exact"
	case TimeDelayedTS:
		return "delayed_ts"
	case TimeDelayedPkt:
		return "delayed_pkt"
	default:
		return "delayed_both"
	}
}

// ExceptionEvent is the eventType field of an Exception message.
type ExceptionEvent int

const (
	ExceptionEnter ExceptionEvent = iota
	ExceptionExit
	ExceptionResume
)

func (e ExceptionEvent) String() string {
	switch e {
	case ExceptionEnter:
		return "enter"
	case ExceptionExit:
		return "exit"
	default:
		return "resume"
	}
}

// DWTBits is the event bitmap carried by a DWTEvent message.
type DWTBits uint8

const (
	DWTCPI DWTBits = 1 << iota
	DWTExc
	DWTSleep
	DWTLSU
	DWTFold
	DWTCyc
)

// Message is a tagged union over the §3 ITMMessage variants. Only the
// fields relevant to Kind are meaningful; the zero value of the rest is
// undefined and must not be read.
type Message struct {
	Kind      Kind
	Timestamp uint64

	// Software
	SrcAddr uint8
	Len     uint8
	Value   uint32

	// Timestamp
	TimeInc    uint32
	TimeStatus TimeStatus

	// Exception
	ExceptionNumber uint16
	EventType       ExceptionEvent

	// PCSample
	PC    uint32
	Sleep bool

	// DWTEvent
	DWT DWTBits

	// DataRWWP / DataAccessWP / DataOffsetWP
	Comparator uint8
	IsWrite    bool
	Data       uint32
	Offset     uint16

	// NISync
	NIType uint8
	NIAddr uint32
}

func (m Message) String() string {
	return fmt.Sprintf("ITMMessage{%s @%d}", m.Kind, m.Timestamp)
}

// Stats is a snapshot of the decoder's running counters.
type Stats struct {
	SyncCount  uint64
	LostSync   uint64
	Overflows  uint64
	Packets    uint64
	BadHeaders uint64
}
