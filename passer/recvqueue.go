//go:build !windows
// +build !windows

package passer

import (
	"github.com/pkg/errors"

	"github.com/xtaci/fdpasser/transport"
)

// recvEntry is a single waiter, invoked exactly once with either a
// descriptor or a failure indication.
type recvEntry struct {
	cb func(fd int, err error)
}

// RecvQueue is an order-preserving FIFO of delivery callbacks awaiting an
// incoming descriptor.
type RecvQueue struct {
	entries []recvEntry
}

// NewRecvQueue returns an empty RecvQueue.
func NewRecvQueue() *RecvQueue {
	return &RecvQueue{}
}

// Push appends cb to the tail.
func (q *RecvQueue) Push(cb func(fd int, err error)) {
	q.entries = append(q.entries, recvEntry{cb: cb})
}

// Len reports the number of waiters still queued.
func (q *RecvQueue) Len() int {
	return len(q.entries)
}

// Empty reports whether the queue has no pending waiters.
func (q *RecvQueue) Empty() bool {
	return len(q.entries) == 0
}

// errTableFullDespiteSentinel is the "must not happen" outcome: the
// sentinel was released before recv, so the kernel closing the in-flight
// descriptor for want of a slot indicates a deeper inconsistency.
var errTableFullDespiteSentinel = errors.New("fdpasser: kernel reported table-full on recv despite a released sentinel slot")

// Drain releases the sentinel, attempts one receive, then unconditionally
// attempts to reacquire the sentinel before looking at the receive result.
// It returns enterRetry=true when the caller must stop driving this queue
// until the retry timer succeeds, and a non-nil err when the Passer must
// shut down.
//
// A readiness wakeup with nothing actually to read still pays the
// release/reacquire cost: the reserved slot sits vacant for the duration of
// one RecvOne() call even when that call only returns ErrWouldBlock.
func (q *RecvQueue) Drain(t transport.Transport, sentinel *Sentinel) (enterRetry bool, err error) {
	for len(q.entries) > 0 {
		if releaseErr := sentinel.Release(); releaseErr != nil {
			return false, releaseErr
		}

		fd, recvErr := t.RecvOne()
		reacquireErr := sentinel.Reacquire()

		if recvErr == nil {
			head := q.entries[0]
			q.entries = q.entries[1:]
			if head.cb != nil {
				head.cb(fd, nil)
			}
			if reacquireErr == transport.ErrTableFull {
				return true, nil
			}
			if reacquireErr != nil {
				return false, reacquireErr
			}
			continue
		}

		if recvErr == transport.ErrWouldBlock {
			if reacquireErr == transport.ErrTableFull {
				return true, nil
			}
			return false, reacquireErr
		}

		if recvErr == transport.ErrTableFull {
			return false, errTableFullDespiteSentinel
		}

		// Fatal, including orderly peer shutdown.
		return false, recvErr
	}
	return false, nil
}

// Fail drains every remaining waiter, invoking it with a failure
// indication. Used by Shutdown.
func (q *RecvQueue) Fail(err error) {
	for _, e := range q.entries {
		if e.cb != nil {
			e.cb(-1, err)
		}
	}
	q.entries = nil
}
