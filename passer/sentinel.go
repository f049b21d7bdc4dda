//go:build !windows
// +build !windows

package passer

import (
	"golang.org/x/sys/unix"

	"github.com/xtaci/fdpasser/transport"
)

// Sentinel is a reserved descriptor-table slot. Its sole purpose is to hold
// one slot open so that, when released immediately before a receive, the
// kernel is guaranteed at least one free slot to admit an incoming
// descriptor. See the RecvQueue drain ordering in recvqueue.go for why
// release-before-recv is the defining correctness property of this design.
type Sentinel struct {
	source int // descriptor duplicated to create/recreate the reservation
	held   int // current reservation, or -1 when vacated
}

// NewSentinel reserves a slot by duplicating file descriptor 0 (stdin),
// which is open in essentially every process and is never itself consumed
// by this package.
func NewSentinel() (*Sentinel, error) {
	return NewSentinelFrom(0)
}

// NewSentinelFrom reserves a slot by duplicating source. Use this when fd 0
// is not a reliable always-open descriptor in the host process (e.g. a
// daemon that closes stdin).
func NewSentinelFrom(source int) (*Sentinel, error) {
	fd, err := unix.Dup(source)
	if err != nil {
		return nil, err
	}
	return &Sentinel{source: source, held: fd}, nil
}

// Held reports whether the sentinel currently occupies a slot.
func (s *Sentinel) Held() bool {
	return s.held >= 0
}

// Release closes the held slot, if any, vacating the sentinel.
func (s *Sentinel) Release() error {
	if s.held < 0 {
		return nil
	}
	err := unix.Close(s.held)
	s.held = -1
	return err
}

// Reacquire attempts to occupy a fresh slot. It is a no-op returning nil if
// already held. On EMFILE/ENFILE it returns transport.ErrTableFull and the
// sentinel remains vacated — the caller (Passer) must enter retry mode.
func (s *Sentinel) Reacquire() error {
	if s.held >= 0 {
		return nil
	}
	fd, err := unix.Dup(s.source)
	if err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			return transport.ErrTableFull
		}
		return err
	}
	s.held = fd
	return nil
}

// Close releases the sentinel permanently. Equivalent to Release.
func (s *Sentinel) Close() error {
	return s.Release()
}
