// Package tpiu implements the Trace Port Interface Unit frame decoder:
// the outer framing protocol that demultiplexes several logical trace
// streams onto one physical link. See §3 and §4.1 of the design.
package tpiu

import "fmt"

// FrameSize is the fixed physical frame size: 15 payload bytes plus one
// auxiliary bit-packing byte.
const FrameSize = 16

// State is the FrameDecoder's synchronisation state.
type State int

const (
	Unsynced State = iota
	Rxing
)

func (s State) String() string {
	if s == Rxing {
		return "RXING"
	}
	return "UNSYNCED"
}

// Event is returned by every Pump call.
type Event int

const (
	EventNone Event = iota
	EventRxing
	EventNewSync
	EventSynced
	EventRxedPacket
	EventUnsynced
	EventError
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventRxing:
		return "Rxing"
	case EventNewSync:
		return "NewSync"
	case EventSynced:
		return "Synced"
	case EventRxedPacket:
		return "RxedPacket"
	case EventUnsynced:
		return "Unsynced"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Item is one demultiplexed (stream_id, data_byte) pair, in stream order.
type Item struct {
	StreamID uint8
	Data     uint8
}

// Packet is the ordered result of decoding one 16-byte frame: up to 15
// (stream_id, data) items.
type Packet struct {
	Items []Item
}

func (p Packet) String() string {
	return fmt.Sprintf("TPIUPacket{%d items}", len(p.Items))
}

// CommsStats is the side-channel statistics frame identified by a first
// payload byte of 0xA6 (§3).
type CommsStats struct {
	PendingCount uint16
	Leds         uint8
	LostFrames   uint16
	TotalFrames  uint32
}

// Stats is a snapshot of the decoder's running counters, exposed for
// diagnostics and metrics (§8 testable properties: SyncCount+LostSync is
// monotone non-decreasing).
type Stats struct {
	SyncCount     uint64
	LostSync      uint64
	HalfSyncCount uint64
	Packets       uint64
}
