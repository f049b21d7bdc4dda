//go:build solaris || illumos
// +build solaris illumos

package transport

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sysvTransport implements Transport using the STREAMS I_SENDFD/I_RECVFD
// ioctls on a pipe endpoint, the SysV equivalent of SCM_RIGHTS ancillary
// data used by the BSD back-end.
type sysvTransport struct {
	fd int
}

// NewSysV wraps an already-non-blocking STREAMS pipe endpoint.
func NewSysV(fd int) Transport {
	return &sysvTransport{fd: fd}
}

func (t *sysvTransport) SendOne(fd int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(unix.I_SENDFD), uintptr(fd))
	if errno == 0 {
		return nil
	}
	switch errno {
	case unix.EAGAIN:
		return ErrWouldBlock
	default:
		return errno
	}
}

func (t *sysvTransport) RecvOne() (int, error) {
	var rfd unix.Strrecvfd
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(unix.I_RECVFD), uintptr(unsafe.Pointer(&rfd)))
	if errno == 0 {
		return int(rfd.Fd), nil
	}
	switch errno {
	case unix.EAGAIN:
		return -1, ErrWouldBlock
	// EMFILE/ENFILE on I_RECVFD is how Solaris reports "too many open
	// files" for an inbound descriptor.
	case unix.EMFILE, unix.ENFILE:
		return -1, ErrTableFull
	default:
		return -1, errno
	}
}

func (t *sysvTransport) Close() error {
	return unix.Close(t.fd)
}

func (t *sysvTransport) Fd() int {
	return t.fd
}
