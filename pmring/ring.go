// Package pmring implements the post-mortem ring buffer described in
// §4.4: a fixed-capacity byte ring feeding an ETM decoder on demand, with
// either a lossy "running" overflow policy or a "single-shot" capture
// that holds its contents until explicitly released.
package pmring

import (
	"time"

	"swotrace/internal/common"
	"swotrace/logging"
)

// Policy selects the ring's behaviour when the write pointer catches the
// read pointer.
type Policy int

const (
	// Running discards the oldest byte and keeps accepting writes — a
	// lossy, newest-wins buffer.
	Running Policy = iota
	// SingleShot freezes the ring on first collision; further writes are
	// dropped until release().
	SingleShot
)

const (
	// MinCapacity is the minimum ring size accepted at construction.
	MinCapacity = 1024
	// DefaultCapacity is used when no explicit size is configured.
	DefaultCapacity = 32 * 1024
	// DefaultHangInterval is how long the ring waits for new bytes before
	// notifying the consumer to drain and decode.
	DefaultHangInterval = 200 * time.Millisecond
)

// Ring is a fixed-capacity byte ring buffer. Not safe for concurrent use;
// owned by the single pump thread (§5).
type Ring struct {
	common.Component

	log logging.Logger

	buf    []byte
	rp, wp int
	count  int
	held   bool
	policy Policy

	hangInterval time.Duration
	lastWrite    time.Time
	wrapped      bool
}

// New creates a Ring of the given capacity (clamped to MinCapacity) and
// policy.
func New(log logging.Logger, capacity int, policy Policy) *Ring {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	r := &Ring{
		log:          log,
		buf:          make([]byte, capacity),
		policy:       policy,
		hangInterval: DefaultHangInterval,
	}
	r.Component.Init("pmring")
	r.lastWrite = r.Now()
	return r
}

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Held reports whether a single-shot ring has frozen its contents.
func (r *Ring) Held() bool { return r.held }

// Wrapped reports whether a running-mode ring has overwritten unread data
// since the last release — this is the signal that forces an ETM resync
// per §4.5. A single-shot ring never overwrites, so it always reports false.
func (r *Ring) Wrapped() bool { return r.wrapped }

// full and empty are tracked via count rather than rp==wp, so that a
// buffer holding exactly Cap() bytes (rp==wp again after a full lap) is
// distinguishable from one holding none — see DESIGN.md for why the
// naive rp/wp-only scheme under-counts by one slot.
func (r *Ring) full() bool {
	return r.count == len(r.buf)
}

func (r *Ring) empty() bool {
	return r.count == 0
}

// Push writes one byte into the ring, per the §4.4 overflow policy.
func (r *Ring) Push(b byte) {
	r.lastWrite = r.Now()

	if r.held {
		return
	}

	if r.full() {
		switch r.policy {
		case SingleShot:
			r.held = true
			if r.log != nil {
				r.log.Log(common.SeverityInfo, r.Name, "single-shot capture complete")
			}
			return
		default:
			r.buf[r.wp] = b
			r.wp = (r.wp + 1) % len(r.buf)
			r.rp = (r.rp + 1) % len(r.buf)
			r.wrapped = true
			return
		}
	}

	r.buf[r.wp] = b
	r.wp = (r.wp + 1) % len(r.buf)
	r.count++
}

// Release resets the ring to empty and clears the held/wrapped latches.
func (r *Ring) Release() {
	r.rp = 0
	r.wp = 0
	r.count = 0
	r.held = false
	r.wrapped = false
}

// DrainForDecode invokes f with up to two contiguous slices covering the
// unread region rp..wp (handling wraparound), leaving the pointers
// untouched. f is called with the oldest bytes first.
func (r *Ring) DrainForDecode(f func(chunk []byte)) {
	if r.empty() {
		return
	}
	if r.wp > r.rp {
		f(r.buf[r.rp:r.wp])
		return
	}
	f(r.buf[r.rp:])
	if r.wp > 0 {
		f(r.buf[:r.wp])
	}
}

// HangElapsed reports whether the ring has gone idle (non-empty, no
// writes) for at least the configured hang interval, per §4.4/§5.
func (r *Ring) HangElapsed() bool {
	if r.empty() {
		return false
	}
	return r.Now().Sub(r.lastWrite) >= r.hangInterval
}
