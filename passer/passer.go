//go:build !windows
// +build !windows

// Package passer implements a buffered, non-blocking, bidirectional
// channel for transferring open file descriptors between cooperating
// processes on one host: two order-preserving queues, a sentinel slot
// reservation protocol that makes receive-side descriptor-table exhaustion
// recoverable, and a small state machine tying them to a
// transport.Transport endpoint.
//
// Nothing here blocks the caller. push_send_fh, push_recv_fh, i_am_parent,
// i_am_child and Shutdown all return immediately; actual descriptor
// movement happens inside callbacks the Passer registers with an
// ioloop.Watcher. A Passer keeps no internal lock, so every operation on
// one Passer must be serialized by whatever goroutine/loop owns it.
package passer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/xtaci/fdpasser/ioloop"
	"github.com/xtaci/fdpasser/rendezvous"
	"github.com/xtaci/fdpasser/transport"
)

// Config configures a new Passer's construction contract.
type Config struct {
	// FDs is empty (core creates a fresh socketpair/pipe pair), one
	// element (already-rendezvoused endpoint, no role call needed), or
	// two elements (caller will fork; IAmParent/IAmChild pick a side).
	FDs []int

	// DontSetNonblocking skips putting the endpoint in non-blocking mode.
	// Not recommended: spurious readiness from some loops can otherwise
	// trigger a blocking syscall.
	DontSetNonblocking bool

	// OnError is invoked exactly once, at Shutdown, with the cause (nil
	// for an orderly shutdown).
	OnError func(error)

	// Watcher supplies readiness notification. If nil, ioloop.NewDefault()
	// is used.
	Watcher ioloop.Watcher

	// RetryInterval overrides DefaultRetryInterval.
	RetryInterval time.Duration

	// SentinelSource is the descriptor duplicated to reserve/re-reserve
	// the sentinel slot. Defaults to 0 (stdin).
	SentinelSource int

	// Logger overrides the default per-Passer logrus entry.
	Logger *logrus.Entry
}

// Passer composes one transport endpoint with a SendQueue, a RecvQueue, a
// Sentinel, and readiness watchers.
type Passer struct {
	cfg      Config
	watcher  ioloop.Watcher
	state    State
	log      *logrus.Entry
	counters counters

	// Unconfigured-with-two-endpoints bookkeeping.
	paired   bool
	pendingA int
	pendingB int

	endpointFD int
	transport  transport.Transport
	sentinel   *Sentinel

	sendQ *SendQueue
	recvQ *RecvQueue
	retry *retryTimer

	readArmed  bool
	writeArmed bool
	inRetry    bool
}

// New constructs a Passer per Config. With zero FDs, a fresh paired
// transport is created internally and role selection is deferred to
// IAmParent/IAmChild. No watcher is registered at construction time, so
// constructing a Passer before forking is always safe.
func New(cfg Config) (*Passer, error) {
	p := &Passer{
		cfg:   cfg,
		sendQ: NewSendQueue(),
		recvQ: NewRecvQueue(),
	}
	if cfg.Logger != nil {
		p.log = cfg.Logger
	} else {
		p.log = logrus.WithField("component", "passer")
	}
	if cfg.Watcher != nil {
		p.watcher = cfg.Watcher
	} else {
		p.watcher = ioloop.NewDefault()
	}
	p.retry = newRetryTimer(p.watcher, cfg.RetryInterval)

	switch len(cfg.FDs) {
	case 0:
		a, b, err := rendezvous.Socketpair()
		if err != nil {
			return nil, errors.Wrap(err, "rendezvous.Socketpair")
		}
		p.pendingA, p.pendingB = a, b
		p.paired = true
		p.state = StateUnconfigured
	case 1:
		if err := p.settle(cfg.FDs[0], StateSingle); err != nil {
			return nil, err
		}
	case 2:
		p.pendingA, p.pendingB = cfg.FDs[0], cfg.FDs[1]
		p.paired = true
		p.state = StateUnconfigured
	default:
		return nil, newProgrammerError("Config.FDs must have length 0, 1, or 2")
	}
	return p, nil
}

// settle finalizes role selection: puts fd in non-blocking mode (unless
// opted out), builds the platform Transport, reserves the Sentinel, and
// transitions to state.
func (p *Passer) settle(fd int, state State) error {
	if !p.cfg.DontSetNonblocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			return errors.Wrap(err, "fdpasser: setting endpoint non-blocking")
		}
	}
	source := p.cfg.SentinelSource
	sentinel, err := NewSentinelFrom(source)
	if err != nil {
		return errors.Wrap(err, "fdpasser: reserving sentinel slot")
	}
	p.endpointFD = fd
	p.transport = transport.New(fd)
	p.sentinel = sentinel
	p.state = state
	p.paired = false
	return nil
}

// IAmParent retains the first constructor endpoint and closes the second.
// Valid only on a Passer constructed with zero or two endpoints, before any
// role has been selected.
func (p *Passer) IAmParent() error {
	if p.state != StateUnconfigured || !p.paired {
		return newProgrammerError("i_am_parent called on a Passer that is not awaiting role selection")
	}
	unix.Close(p.pendingB)
	return p.settle(p.pendingA, StateParent)
}

// IAmChild retains the second constructor endpoint and closes the first.
func (p *Passer) IAmChild() error {
	if p.state != StateUnconfigured || !p.paired {
		return newProgrammerError("i_am_child called on a Passer that is not awaiting role selection")
	}
	unix.Close(p.pendingA)
	return p.settle(p.pendingB, StateChild)
}

// State returns the Passer's current lifecycle state.
func (p *Passer) State() State {
	return p.state
}

// PushSendFH enqueues fd for transmission and arms the write watcher.
// Ownership of fd transfers to the Passer: the caller must not close it or
// otherwise touch it after this call returns, unless a non-nil error is
// returned (in which case ownership never transferred). cb, if non-nil, is
// invoked exactly once after the kernel send completes or the Passer fails.
func (p *Passer) PushSendFH(fd int, cb func(error)) error {
	if p.state == StateShutdown {
		return ErrShutdown
	}
	if !p.state.roleSettled() {
		return newProgrammerError("push_send_fh called before role selection")
	}
	p.sendQ.Push(fd, cb)
	p.armWrite()
	return nil
}

// PushRecvFH enqueues cb to be invoked with the next descriptor to arrive.
// If the Passer is currently in retry mode, cb simply waits: it fires once
// retry mode ends and drains resume.
func (p *Passer) PushRecvFH(cb func(fd int, err error)) error {
	if p.state == StateShutdown {
		return ErrShutdown
	}
	if !p.state.roleSettled() {
		return newProgrammerError("push_recv_fh called before role selection")
	}
	p.recvQ.Push(cb)
	p.armRead()
	return nil
}

func (p *Passer) armWrite() {
	if p.writeArmed || p.sendQ.Empty() {
		return
	}
	p.writeArmed = true
	p.watcher.ArmWrite(p.endpointFD, p.onWritable)
}

func (p *Passer) armRead() {
	if p.inRetry || p.readArmed || p.recvQ.Empty() {
		return
	}
	p.readArmed = true
	p.watcher.ArmRead(p.endpointFD, p.onReadable)
}

func (p *Passer) onWritable() {
	if p.state == StateShutdown {
		return
	}
	p.writeArmed = false
	before := p.sendQ.Len()
	err := p.sendQ.Drain(p.transport)
	sent := before - p.sendQ.Len()
	if err != nil {
		// Drain also dequeues the failed head entry; it was not transmitted.
		sent--
	}
	p.counters.addSent(uint64(sent))
	if err != nil {
		p.shutdown(err)
		return
	}
	p.armWrite()
}

func (p *Passer) onReadable() {
	if p.state == StateShutdown {
		return
	}
	p.readArmed = false
	before := p.recvQ.Len()
	enterRetry, err := p.recvQ.Drain(p.transport, p.sentinel)
	p.counters.addReceived(uint64(before - p.recvQ.Len()))
	if err != nil {
		if transport.IsOrderlyShutdown(err) {
			p.shutdown(nil)
		} else {
			p.shutdown(err)
		}
		return
	}
	if enterRetry {
		p.enterRetryMode()
		return
	}
	p.armRead()
}

func (p *Passer) enterRetryMode() {
	p.inRetry = true
	p.readArmed = false
	p.counters.addRetryEntry()
	p.log.WithField("fd", p.endpointFD).Warn("descriptor table full, entering retry mode")
	p.retry.start(p.onRetryFire)
}

func (p *Passer) onRetryFire() {
	if p.state == StateShutdown {
		return
	}
	err := p.sentinel.Reacquire()
	if err == transport.ErrTableFull {
		p.retry.start(p.onRetryFire)
		return
	}
	if err != nil {
		p.shutdown(err)
		return
	}
	p.inRetry = false
	p.counters.addRetryExit()
	p.log.WithField("fd", p.endpointFD).Info("sentinel reacquired, leaving retry mode")
	p.armRead()
}

// Shutdown is the sole cancellation primitive: it closes all queued send
// descriptors, fails every pending recv waiter, releases the sentinel,
// deregisters watchers, closes the endpoint, and invokes OnError with a nil
// reason for this orderly shutdown.
func (p *Passer) Shutdown() {
	p.shutdown(nil)
}

func (p *Passer) shutdown(cause error) {
	if p.state == StateShutdown {
		return
	}
	p.state = StateShutdown
	p.retry.stop()

	failCause := cause
	if failCause == nil {
		failCause = ErrShutdown
	}
	p.sendQ.Fail(failCause)
	p.recvQ.Fail(failCause)

	if p.sentinel != nil {
		p.sentinel.Release()
	}
	if p.watcher != nil && p.transport != nil {
		p.watcher.Close(p.endpointFD)
	}
	if p.transport != nil {
		p.transport.Close()
	}
	if p.paired {
		// role was never settled; close both candidate endpoints.
		unix.Close(p.pendingA)
		unix.Close(p.pendingB)
	}

	if cause != nil {
		p.log.WithError(cause).Warn("passer shut down")
	} else {
		p.log.Info("passer shut down")
	}
	if p.cfg.OnError != nil {
		p.cfg.OnError(cause)
	}
}
