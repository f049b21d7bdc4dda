//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package rendezvous

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Socketpair returns two connected UNIX-domain stream sockets suitable for
// constructing a Passer on each side of a fork.
func Socketpair() (a int, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, errors.Wrap(err, "rendezvous: socketpair")
	}
	return fds[0], fds[1], nil
}

type bsdListener struct {
	fd   int
	path string
}

// Server binds and listens on a UNIX-domain stream socket at path. backlog
// of 0 uses a sane default (16, matching typical listen() conventions).
func Server(path string, backlog int) (Listener, error) {
	if backlog <= 0 {
		backlog = 16
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "rendezvous: socket")
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "rendezvous: bind %s", path)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "rendezvous: listen %s", path)
	}
	return &bsdListener{fd: fd, path: path}, nil
}

func (l *bsdListener) Accept() (int, error) {
	nfd, _, err := unix.Accept(l.fd)
	if err != nil {
		return -1, errors.Wrap(err, "rendezvous: accept")
	}
	return nfd, nil
}

func (l *bsdListener) Close() error {
	return unix.Close(l.fd)
}

func (l *bsdListener) Fd() int {
	return l.fd
}

// Connect dials a UNIX-domain stream socket previously created by Server.
func Connect(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "rendezvous: socket")
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "rendezvous: connect %s", path)
	}
	return fd, nil
}
