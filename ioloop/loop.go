// Package ioloop defines the minimal readiness-notification capability the
// passer package depends on, and provides a default implementation built on
// the Go runtime's own netpoller rather than a hand-rolled epoll/kqueue
// layer.
//
// A host application that already runs its own event loop (libuv, a custom
// reactor, …) implements Watcher directly instead of using Default.
package ioloop

import "time"

// Timer is a handle returned by Watcher.ScheduleTimer. Stop cancels a
// pending firing; it is a no-op if the timer already fired.
type Timer interface {
	Stop()
}

// Watcher is the capability set a Passer requires from its host event loop:
// arm/disarm readiness interest on a raw descriptor, and schedule a
// one-shot timer. Watcher implementations must be safe to call only from
// the loop's own goroutine/thread — passer never calls concurrently into a
// Watcher from more than one goroutine for a given descriptor.
type Watcher interface {
	// ArmRead registers cb to be invoked (once) the next time fd is
	// readable. A nil cb disarms.
	ArmRead(fd int, cb func())
	// ArmWrite registers cb to be invoked (once) the next time fd is
	// writable. A nil cb disarms.
	ArmWrite(fd int, cb func())
	// DisarmRead cancels a pending ArmRead for fd, if any.
	DisarmRead(fd int)
	// DisarmWrite cancels a pending ArmWrite for fd, if any.
	DisarmWrite(fd int)
	// ScheduleTimer invokes cb once after d elapses.
	ScheduleTimer(d time.Duration, cb func()) Timer
	// Close releases any resources the watcher holds for fd; called once
	// the passer using fd shuts down.
	Close(fd int)
}
