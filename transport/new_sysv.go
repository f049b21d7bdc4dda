//go:build solaris || illumos
// +build solaris illumos

package transport

// New wraps fd with the platform's default back-end.
func New(fd int) Transport {
	return NewSysV(fd)
}
