//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package transport

// New wraps fd with the platform's default back-end.
func New(fd int) Transport {
	return NewBSD(fd)
}
