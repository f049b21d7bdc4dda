//go:build !windows
// +build !windows

package passer

import "sync/atomic"

// Stats is a point-in-time snapshot of a Passer's counters, returned on
// demand rather than written to a file.
type Stats struct {
	Sent         uint64 // descriptors successfully transmitted
	Received     uint64 // descriptors successfully delivered to a waiter
	RetryEntries uint64 // number of times retry mode was entered
	RetryExits   uint64 // number of times retry mode was exited
	SendQueued   int    // entries currently waiting to be sent
	RecvQueued   int    // waiters currently waiting for a descriptor
	InRetry      bool
}

type counters struct {
	sent, received, retryEntries, retryExits uint64
}

func (c *counters) addSent(n uint64)     { atomic.AddUint64(&c.sent, n) }
func (c *counters) addReceived(n uint64) { atomic.AddUint64(&c.received, n) }
func (c *counters) addRetryEntry()       { atomic.AddUint64(&c.retryEntries, 1) }
func (c *counters) addRetryExit()        { atomic.AddUint64(&c.retryExits, 1) }

// Stats returns a snapshot of this Passer's counters. Cumulative counters
// are safe to read from any goroutine; the queue-depth fields reflect the
// state as of the call and should be read from the same goroutine driving
// the Passer's Watcher for a consistent picture.
func (p *Passer) Stats() Stats {
	return Stats{
		Sent:         atomic.LoadUint64(&p.counters.sent),
		Received:     atomic.LoadUint64(&p.counters.received),
		RetryEntries: atomic.LoadUint64(&p.counters.retryEntries),
		RetryExits:   atomic.LoadUint64(&p.counters.retryExits),
		SendQueued:   p.sendQ.Len(),
		RecvQueued:   p.recvQ.Len(),
		InRetry:      p.inRetry,
	}
}
