// Package common holds the small set of types shared by every decoder
// stage: severities and error kinds, the pump-thread clock and the
// embeddable component base. The diagnostic logger lives in package logging.
package common

import (
	"fmt"
)

// Severity mirrors the diagnostic stream levels from §7 of the design:
// error, warn, info, debug.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind enumerates the error kinds from §7 ERROR HANDLING DESIGN.
type Kind int

const (
	KindNone Kind = iota
	KindLostSync
	KindStaleFrame
	KindOverflow
	KindInvalidHeader
	KindIOFailure
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindLostSync:
		return "LostSync"
	case KindStaleFrame:
		return "StaleFrame"
	case KindOverflow:
		return "Overflow"
	case KindInvalidHeader:
		return "InvalidHeader"
	case KindIOFailure:
		return "IOFailure"
	case KindConfigError:
		return "ConfigError"
	default:
		return "None"
	}
}

// Recoverable reports whether the pump thread can keep running after this
// kind of error, per the §7 policy table. ConfigError is always fatal;
// everything else is handled locally by the component that raised it.
func (k Kind) Recoverable() bool {
	return k != KindConfigError
}

// Error is the decoder pipeline's error value. It carries enough context
// (component, stream index, channel) to make the diagnostic line useful
// without requiring the caller to re-derive it.
type Error struct {
	Kind      Kind
	Sev       Severity
	Component string
	ChanID    uint8
	HasChan   bool
	Index     uint64
	HasIndex  bool
	Message   string
}

func New(sev Severity, kind Kind, component, msg string) *Error {
	return &Error{Kind: kind, Sev: sev, Component: component, Message: msg}
}

func (e *Error) WithIndex(idx uint64) *Error {
	e.Index = idx
	e.HasIndex = true
	return e
}

func (e *Error) WithChan(id uint8) *Error {
	e.ChanID = id
	e.HasChan = true
	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: [%s] %s", e.Sev, e.Kind, e.Component)
	if e.HasIndex {
		s += fmt.Sprintf(" idx=%d", e.Index)
	}
	if e.HasChan {
		s += fmt.Sprintf(" chan=%d", e.ChanID)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}
