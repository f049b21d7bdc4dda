//go:build !windows
// +build !windows

package passer

import "github.com/pkg/errors"

// ProgrammerError is returned synchronously (never via the error callback)
// when the caller violates the lifecycle contract: pushing to a paired-but
// role-unsettled Passer, or constructing one with an inconsistent set of
// endpoints. It is always a bug in the caller, never a runtime condition.
type ProgrammerError struct {
	msg string
}

func (e *ProgrammerError) Error() string { return "fdpasser: programmer error: " + e.msg }

func newProgrammerError(msg string) error {
	return errors.WithStack(&ProgrammerError{msg: msg})
}

// ErrShutdown is returned by push operations on a Passer that has already
// transitioned to Shutdown.
var ErrShutdown = errors.New("fdpasser: passer is shut down")
