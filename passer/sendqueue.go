//go:build !windows
// +build !windows

package passer

import (
	"golang.org/x/sys/unix"

	"github.com/xtaci/fdpasser/transport"
)

// sendEntry is one descriptor owned exclusively by a SendQueue until
// flushed.
type sendEntry struct {
	fd int
	cb func(error)
}

// SendQueue is an order-preserving FIFO of descriptors awaiting
// transmission. Push never blocks and never reports an error synchronously;
// Drain performs the actual I/O against a transport.Transport.
type SendQueue struct {
	entries []sendEntry
}

// NewSendQueue returns an empty SendQueue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Push appends (fd, cb) to the tail. Ownership of fd transfers to the
// queue; the caller must not touch it again.
func (q *SendQueue) Push(fd int, cb func(error)) {
	q.entries = append(q.entries, sendEntry{fd: fd, cb: cb})
}

// Len reports the number of entries still queued.
func (q *SendQueue) Len() int {
	return len(q.entries)
}

// Empty reports whether the queue has no pending entries.
func (q *SendQueue) Empty() bool {
	return len(q.entries) == 0
}

// Drain sends as many head entries as t accepts without blocking. It
// returns the fatal error from t, if any; by the time it returns, the
// entry that failed has already been closed and had its callback invoked
// with that error (per the shutdown-atomicity policy picked in DESIGN.md).
func (q *SendQueue) Drain(t transport.Transport) error {
	for len(q.entries) > 0 {
		head := q.entries[0]
		err := t.SendOne(head.fd)
		if err == nil {
			unix.Close(head.fd)
			q.entries = q.entries[1:]
			if head.cb != nil {
				head.cb(nil)
			}
			continue
		}
		if err == transport.ErrWouldBlock {
			return nil
		}
		// Fatal: the head descriptor may have been partially processed by
		// the kernel. Close it and fail its callback rather than retry
		// (see the shutdown-atomicity policy in DESIGN.md).
		unix.Close(head.fd)
		q.entries = q.entries[1:]
		if head.cb != nil {
			head.cb(err)
		}
		return err
	}
	return nil
}

// Fail drains every remaining entry, closing its descriptor and invoking
// its callback with err. Used by Shutdown.
func (q *SendQueue) Fail(err error) {
	for _, e := range q.entries {
		unix.Close(e.fd)
		if e.cb != nil {
			e.cb(err)
		}
	}
	q.entries = nil
}
