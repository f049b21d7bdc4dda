// Package transport abstracts the kernel mechanism used to move exactly one
// open file descriptor across a pre-established UNIX-domain endpoint.
//
// Two back-ends exist, chosen at compile time by GOOS: an SCM_RIGHTS
// ancillary-data back-end for BSD-derived kernels (transport_bsd.go) and a
// STREAMS ioctl back-end for Solaris/illumos (transport_sysv.go). Both
// satisfy the same Transport interface and the same one-descriptor-per-call
// contract; batching several descriptors into one message is never attempted.
package transport

import "errors"

// ErrWouldBlock indicates the endpoint is not currently ready; the caller
// should retry once its event loop reports readiness again.
var ErrWouldBlock = errors.New("transport: would block")

// ErrTableFull indicates the local descriptor table is exhausted: the kernel
// could not allocate a slot for an incoming descriptor. RecvOne returns it;
// SendOne never does. It is transient: callers recover via the
// sentinel/retry protocol, never by surfacing this to the application.
var ErrTableFull = errors.New("transport: descriptor table full")

// Transport moves one descriptor at a time over a connected endpoint.
// Implementations are stateless beyond the wrapped endpoint file descriptor;
// all buffering happens above this layer.
type Transport interface {
	// SendOne transmits fd in one atomic kernel message. On success the
	// caller must close fd; SendOne never closes it itself.
	SendOne(fd int) error

	// RecvOne receives one descriptor. Callers must have already freed a
	// slot in the descriptor table (see passer.Sentinel) before calling.
	RecvOne() (int, error)

	// Close releases the underlying endpoint.
	Close() error

	// Fd returns the endpoint's raw descriptor, for registration with an
	// ioloop.Watcher.
	Fd() int
}
