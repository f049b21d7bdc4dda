//go:build solaris || illumos
// +build solaris illumos

package rendezvous

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// pushConnld pushes the "connld" STREAMS module, which arranges for each
// open() of the mounted pipe end to allocate a fresh STREAMS pipe and hand
// one end to the opener — the STREAMS analogue of listen()/accept().
func pushConnld(fd int) error {
	name := [...]byte{'c', 'o', 'n', 'n', 'l', 'd', 0}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.I_PUSH), uintptr(unsafe.Pointer(&name[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// fattach mounts a STREAMS-based descriptor at a filesystem path so opens
// of that path are redirected to the stream. This shells out to the
// SYS_FATTACH trap rather than going through libc, matching the rest of
// this package's direct-syscall style.
func fattach(fd int, path string) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_FATTACH, uintptr(fd), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
