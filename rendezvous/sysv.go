//go:build solaris || illumos
// +build solaris illumos

package rendezvous

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Socketpair returns two ends of a bidirectional STREAMS pipe, the SysV
// equivalent of a UNIX-domain stream socketpair.
func Socketpair() (a int, b int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, errors.Wrap(err, "rendezvous: pipe")
	}
	return fds[0], fds[1], nil
}

type sysvListener struct {
	fd   int
	path string
}

// Server pushes the "connld" STREAMS module onto a pipe and mounts it at
// path via fattach(3C), so that subsequent opens of path hand the opener a
// new STREAMS pipe end. This back-end is exercised far less than the BSD
// one in practice — Solaris/illumos hosts are a small minority of
// deployment targets — and is kept intentionally thin.
func Server(path string, backlog int) (Listener, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, errors.Wrap(err, "rendezvous: pipe")
	}
	if err := pushConnld(fds[1]); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, errors.Wrap(err, "rendezvous: push connld")
	}
	if err := fattach(fds[1], path); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, errors.Wrapf(err, "rendezvous: fattach %s", path)
	}
	return &sysvListener{fd: fds[1], path: path}, nil
}

func (l *sysvListener) Accept() (int, error) {
	fd, err := unix.Open(l.path, unix.O_RDWR, 0)
	if err != nil {
		return -1, errors.Wrap(err, "rendezvous: accept via open")
	}
	return fd, nil
}

func (l *sysvListener) Close() error {
	unix.Unlink(l.path)
	return unix.Close(l.fd)
}

func (l *sysvListener) Fd() int {
	return l.fd
}

// Connect opens the mounted STREAMS pipe at path.
func Connect(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "rendezvous: connect %s", path)
	}
	return fd, nil
}
