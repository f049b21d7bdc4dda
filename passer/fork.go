//go:build !windows
// +build !windows

package passer

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/xtaci/fdpasser/rendezvous"
)

// ForkResult reports which side of a ForkWithPasser call the current
// process ended up on.
type ForkResult struct {
	Passer   *Passer
	IsParent bool
	Child    *os.Process // nil on the child side
}

// ForkWithPasser constructs a Passer with a fresh socketpair, then spawns
// argv as a child process that inherits the child-side endpoint on fd 3
// (the first descriptor past the standard three), the handshake a caller
// doing its own fork/exec and i_am_parent/i_am_child calls would otherwise
// wire up by hand. This is a convenience on top of the core Passer, using
// plain os/exec.Cmd.ExtraFiles to hand a descriptor to a child process —
// the core Passer itself never depends on it.
//
// Go cannot fork without exec'ing (the runtime is not fork-safe past the
// fork point once goroutines exist), so this spawns argv rather than
// forking the running binary in place; the caller is expected to re-exec
// itself if it wants a true parent/child split of one binary.
func ForkWithPasser(argv []string, extra ...*os.File) (*ForkResult, error) {
	a, b, err := rendezvous.Socketpair()
	if err != nil {
		return nil, errors.Wrap(err, "fdpasser: creating socketpair")
	}

	childEndpoint := os.NewFile(uintptr(b), "fdpasser-child-endpoint")
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.ExtraFiles = append([]*os.File{childEndpoint}, extra...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		childEndpoint.Close()
		return nil, errors.Wrap(err, "fdpasser: starting child process")
	}
	childEndpoint.Close()

	// The parent already knows its role: it kept endpoint a and handed b
	// to the child via ExtraFiles, so the resulting Passer is constructed
	// single-endpoint (role-settled from birth) rather than going through
	// IAmParent/IAmChild.
	p, err := New(Config{FDs: []int{a}})
	if err != nil {
		return nil, err
	}

	return &ForkResult{Passer: p, IsParent: true, Child: cmd.Process}, nil
}
