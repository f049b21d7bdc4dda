//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package transport

import (
	"golang.org/x/sys/unix"
)

// bsdTransport implements Transport using SCM_RIGHTS ancillary data on a
// connected SOCK_STREAM UNIX-domain socket (the modern 4.4BSD mechanism;
// the older 4.3BSD msg_accrights variant is not implemented).
type bsdTransport struct {
	fd int
}

// NewBSD wraps an already-connected, already-non-blocking UNIX-domain
// socket descriptor for one-descriptor-at-a-time transfer.
func NewBSD(fd int) Transport {
	return &bsdTransport{fd: fd}
}

// payload is an opaque single byte accompanying every message, keeping it
// non-empty as recommended by spec: the peer discards it.
var payload = []byte{0}

func (t *bsdTransport) SendOne(fd int) error {
	rights := unix.UnixRights(fd)
	err := unix.Sendmsg(t.fd, payload, rights, nil, 0)
	if err == nil {
		return nil
	}
	if err == unix.EAGAIN {
		return ErrWouldBlock
	}
	// send_one's capability set is {Ok, WouldBlock, Fatal}: unlike recv,
	// the spec defines no TableFull outcome for the sending side.
	return err
}

func (t *bsdTransport) RecvOne() (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, flags, _, err := unix.Recvmsg(t.fd, buf, oob, 0)
	if err != nil {
		switch err {
		case unix.EAGAIN:
			return -1, ErrWouldBlock
		case unix.EMFILE, unix.ENFILE:
			return -1, ErrTableFull
		default:
			return -1, err
		}
	}
	if n == 0 && oobn == 0 {
		// peer closed its end cleanly
		return -1, errOrderlyShutdown
	}
	if flags&unix.MSG_CTRUNC != 0 {
		// ancillary data truncated: the kernel could not allocate a slot
		// for the incoming descriptor.
		return -1, ErrTableFull
	}
	if oobn == 0 {
		return -1, errMalformedMessage
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, errMalformedMessage
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		if len(fds) != 1 {
			// batching is forbidden by design; treat anything else as
			// malformed rather than silently accepting it.
			for _, fd := range fds {
				unix.Close(fd)
			}
			return -1, errMalformedMessage
		}
		return fds[0], nil
	}
	return -1, errMalformedMessage
}

func (t *bsdTransport) Close() error {
	return unix.Close(t.fd)
}

func (t *bsdTransport) Fd() int {
	return t.fd
}
