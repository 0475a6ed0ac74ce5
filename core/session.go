package core

import (
	"io"
	"os"
)

// Phase is the session state. Aborted is terminal and reachable from
// every other phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingHeader
	PhaseReceivingEntries
	PhaseReceivingData
	PhaseAwaitingHandshake
	PhaseVerifying
	PhaseComplete
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingHeader:
		return "awaiting-header"
	case PhaseReceivingEntries:
		return "receiving-entries"
	case PhaseReceivingData:
		return "receiving-data"
	case PhaseAwaitingHandshake:
		return "awaiting-handshake"
	case PhaseVerifying:
		return "verifying"
	case PhaseComplete:
		return "complete"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// BarFunc builds a progress sink for one entry. Nil disables bars, which
// keeps the engine silent under tests and non-interactive runs.
type BarFunc func(total int64, desc string) io.Writer

// session is the per-connection state shared by both directions. Owned by
// exactly one worker goroutine; only the phase getter and the tally are
// meant to be observed from outside it.
type session struct {
	codec *Codec
	phase Phase
	tally Tally

	// dst is the currently open destination file, receive side only.
	dst *os.File
}

func newSession() session {
	return session{
		codec: NewCodec(),
		phase: PhaseIdle,
	}
}

func (s *session) Phase() Phase {
	return s.phase
}

func (s *session) Tally() *Tally {
	return &s.tally
}

func (s *session) setPhase(p Phase) {
	s.phase = p
}

// abort closes any open destination file and parks the session in the
// terminal phase. Partially written files stay on disk for inspection.
func (s *session) abort() {
	if s.dst != nil {
		s.dst.Close()
		s.dst = nil
	}
	s.setPhase(PhaseAborted)
}
