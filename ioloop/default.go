package ioloop

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Default is a Watcher built on syscall.RawConn: each armed direction gets a
// goroutine that calls syscall.RawConn.Read/Write with a callback reporting
// done on its first call, so the call returns at once and the armed callback
// is dispatched whether or not fd is ready; Default does not wait for
// readiness. Callbacks run on a single serializing goroutine so a Passer
// never observes two of its own callbacks running concurrently. A Passer
// driven by Default learns that its endpoint was not ready from
// transport.ErrWouldBlock and re-arms, so a waiter with no incoming
// descriptor keeps the read callback firing repeatedly.
type Default struct {
	mu      sync.Mutex
	entries map[int]*watchEntry
	events  chan func()
	done    chan struct{}
	log     *logrus.Entry
}

type watchEntry struct {
	file *os.File
	raw  syscall.RawConn

	readGen  uint64
	writeGen uint64
}

// NewDefault starts the dispatch goroutine and returns a ready-to-use
// Default watcher.
func NewDefault() *Default {
	d := &Default{
		entries: make(map[int]*watchEntry),
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "ioloop"),
	}
	go d.dispatch()
	return d
}

func (d *Default) dispatch() {
	for {
		select {
		case fn := <-d.events:
			fn()
		case <-d.done:
			return
		}
	}
}

func (d *Default) entryFor(fd int) *watchEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[fd]
	if ok {
		return e
	}
	f := os.NewFile(uintptr(fd), "fdpasser-endpoint")
	// the endpoint descriptor is owned by the Passer, not by this shadow
	// *os.File; drop the finalizer so GC never closes it behind our back.
	runtime.SetFinalizer(f, nil)
	raw, err := f.SyscallConn()
	if err != nil {
		d.log.WithError(err).WithField("fd", fd).Error("cannot obtain raw conn for endpoint")
		return nil
	}
	e = &watchEntry{file: f, raw: raw}
	d.entries[fd] = e
	return e
}

// ArmRead implements Watcher.
func (d *Default) ArmRead(fd int, cb func()) {
	e := d.entryFor(fd)
	if e == nil {
		return
	}
	gen := atomic.AddUint64(&e.readGen, 1)
	if cb == nil {
		return
	}
	go func() {
		err := e.raw.Read(func(uintptr) bool { return true })
		if atomic.LoadUint64(&e.readGen) != gen {
			return // disarmed or re-armed since we started waiting
		}
		if err != nil {
			d.log.WithError(err).WithField("fd", fd).Debug("read wait ended with error")
		}
		select {
		case d.events <- cb:
		case <-d.done:
		}
	}()
}

// ArmWrite implements Watcher.
func (d *Default) ArmWrite(fd int, cb func()) {
	e := d.entryFor(fd)
	if e == nil {
		return
	}
	gen := atomic.AddUint64(&e.writeGen, 1)
	if cb == nil {
		return
	}
	go func() {
		err := e.raw.Write(func(uintptr) bool { return true })
		if atomic.LoadUint64(&e.writeGen) != gen {
			return
		}
		if err != nil {
			d.log.WithError(err).WithField("fd", fd).Debug("write wait ended with error")
		}
		select {
		case d.events <- cb:
		case <-d.done:
		}
	}()
}

// DisarmRead implements Watcher.
func (d *Default) DisarmRead(fd int) {
	d.mu.Lock()
	e, ok := d.entries[fd]
	d.mu.Unlock()
	if ok {
		atomic.AddUint64(&e.readGen, 1)
	}
}

// DisarmWrite implements Watcher.
func (d *Default) DisarmWrite(fd int) {
	d.mu.Lock()
	e, ok := d.entries[fd]
	d.mu.Unlock()
	if ok {
		atomic.AddUint64(&e.writeGen, 1)
	}
}

// ScheduleTimer implements Watcher using time.AfterFunc, dispatched through
// the same serializing channel as readiness callbacks.
func (d *Default) ScheduleTimer(dur time.Duration, cb func()) Timer {
	t := time.AfterFunc(dur, func() {
		select {
		case d.events <- cb:
		case <-d.done:
		}
	})
	return timerHandle{t}
}

// Close implements Watcher: it detaches the os.File wrapper for fd without
// closing the underlying descriptor (ownership stays with the caller).
func (d *Default) Close(fd int) {
	d.mu.Lock()
	e, ok := d.entries[fd]
	delete(d.entries, fd)
	d.mu.Unlock()
	if ok {
		atomic.AddUint64(&e.readGen, 1)
		atomic.AddUint64(&e.writeGen, 1)
	}
}

// Shutdown stops the dispatch goroutine. Safe to call once.
func (d *Default) Shutdown() {
	close(d.done)
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Stop() {
	h.t.Stop()
}
