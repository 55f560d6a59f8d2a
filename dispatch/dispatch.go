// Package dispatch implements the §4.3 message dispatcher: it routes a
// decoded ITM message to the single handler registered for its variant,
// synchronously and in stream order, on the pump thread.
package dispatch

import (
	"swotrace/internal/common"
	"swotrace/itm"
	"swotrace/logging"
)

// Handler receives one decoded message by value. The core retains no
// reference to it after the call returns.
type Handler func(itm.Message)

// FilewriterChannel is the reserved software srcAddr steered to the
// filewriter sink instead of a normal channel handler, when the
// filewriter is enabled (§4.3).
const FilewriterChannel = 31

// Dispatcher routes typed messages to per-variant handlers. A missing
// handler is silently ignored; this is not an error condition.
type Dispatcher struct {
	common.Component

	log logging.Logger

	byKind map[itm.Kind]Handler

	filewriter       Handler
	filewriterActive bool
}

// New creates an empty Dispatcher.
func New(log logging.Logger) *Dispatcher {
	d := &Dispatcher{log: log, byKind: make(map[itm.Kind]Handler)}
	d.Component.Init("dispatch")
	return d
}

// On registers the handler invoked for messages of the given kind,
// replacing any previously registered handler. Channel reconfiguration
// must only happen before the pump loop starts (§5).
func (d *Dispatcher) On(kind itm.Kind, h Handler) {
	d.byKind[kind] = h
}

// EnableFilewriter routes Software messages whose SrcAddr equals
// FilewriterChannel to h instead of the normal KindSoftware handler.
func (d *Dispatcher) EnableFilewriter(h Handler) {
	d.filewriter = h
	d.filewriterActive = true
}

// DisableFilewriter reverts filewriter steering.
func (d *Dispatcher) DisableFilewriter() {
	d.filewriter = nil
	d.filewriterActive = false
}

// Dispatch routes one message. It never blocks on the handler's behalf —
// a handler that wants asynchrony owns that concern itself (§5).
func (d *Dispatcher) Dispatch(m itm.Message) {
	if d.filewriterActive && m.Kind == itm.KindSoftware && m.SrcAddr == FilewriterChannel {
		d.filewriter(m)
		return
	}

	h, ok := d.byKind[m.Kind]
	if !ok {
		return
	}
	h(m)
}
