// Package session assembles one decode pipeline per §9's "explicit
// session object" redesign: a FrameDecoder, an ITMDecoder, an optional
// PMRing and ETMDecoder, and the Dispatcher that routes decoded
// messages — all owned and driven by a single pump thread, as opposed
// to the teacher's process-wide option/runtime globals.
package session

import (
	"context"

	"github.com/google/uuid"

	"swotrace/config"
	"swotrace/dispatch"
	"swotrace/etm"
	"swotrace/itm"
	"swotrace/logging"
	"swotrace/pmring"
	"swotrace/tpiu"
)

// pmRingStreamID is the TPIU stream carrying raw instruction-trace bytes
// destined for the post-mortem ring, per §4.4 "Source for the ring".
const pmRingStreamID = 1

// Session owns one complete decode pipeline for one trace source.
// Not safe for concurrent use: every Pump call must come from the same
// goroutine (§5).
type Session struct {
	ID uuid.UUID

	log logging.Logger

	cfg config.Config

	Frame      *tpiu.FrameDecoder
	ITM        *itm.Decoder
	Dispatcher *dispatch.Dispatcher
	Ring       *pmring.Ring
	ETM        *etm.Decoder
}

// New constructs a Session from a resolved configuration. The PM ring
// and ETM decoder are only created when cfg.PostMortem requests
// termination-at-EOF post-mortem capture (§6's `-E`); a live-only
// session leaves both nil. This is distinct from the FIFO sink's
// "permafile" output mode (§6: regular file vs named pipe), which is
// not yet wired to a concrete sink — see DESIGN.md.
func New(log logging.Logger, cfg config.Config) *Session {
	s := &Session{
		ID:         uuid.New(),
		log:        log,
		cfg:        cfg,
		Frame:      tpiu.NewFrameDecoder(log),
		ITM:        itm.NewDecoder(log, !cfg.RelaxITMSync),
		Dispatcher: dispatch.New(log),
	}
	if cfg.PostMortem {
		policy := pmring.SingleShot
		if !cfg.EndAtEOF {
			policy = pmring.Running
		}
		s.Ring = pmring.New(log, cfg.PMRingKiB*1024, policy)
		s.ETM = etm.New(log)
	}
	return s
}

// PumpTPIU feeds one raw wire byte through the TPIU framing layer. Fully
// demultiplexed items from the configured TPIU channel are handed to
// PumpITM; items on the post-mortem stream are pushed into the ring
// instead, per §4.4.
func (s *Session) PumpTPIU(b byte) {
	ev := s.Frame.Pump(b)
	if ev != tpiu.EventRxedPacket {
		return
	}
	pkt := s.Frame.GetPacket()
	for _, item := range pkt.Items {
		switch {
		case int(item.StreamID) == s.cfg.TPIUChannel:
			s.PumpITM(item.Data)
		case s.Ring != nil && item.StreamID == pmRingStreamID:
			s.Ring.Push(item.Data)
		}
	}
}

// PumpITM feeds one ITM-channel byte through the ITM decoder, dispatching
// any fully decoded message.
func (s *Session) PumpITM(b byte) {
	if s.ITM.Pump(b) == itm.EventPacketRxed {
		s.Dispatcher.Dispatch(s.ITM.Last())
	}
}

// DrainRing decodes whatever the post-mortem ring currently holds
// through the ETM decoder, reporting state changes and diagnostics via
// the given callbacks. Once the ring has wrapped, every drain until the
// ring is released forces the ETM decoder to resync first, since each
// drain decodes from the read pointer again (§9: a ring wrap invalidates
// any assumption of instruction-stream continuity).
func (s *Session) DrainRing(ctx context.Context, onState etm.OnState, onReport etm.OnReport) error {
	if s.Ring == nil || s.ETM == nil {
		return nil
	}
	if s.Ring.Wrapped() {
		s.ETM.NotifyRingWrapped(onReport)
	}

	var pumpErr error
	s.Ring.DrainForDecode(func(chunk []byte) {
		if pumpErr != nil {
			return
		}
		pumpErr = s.ETM.Pump(chunk, onState, onReport, ctx)
	})
	return pumpErr
}

// HangElapsed reports whether the post-mortem ring has gone idle long
// enough to warrant an out-of-band drain (§4.4/§5's hang-interval poll).
func (s *Session) HangElapsed() bool {
	return s.Ring != nil && s.Ring.HangElapsed()
}
