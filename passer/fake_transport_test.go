//go:build !windows
// +build !windows

package passer

import "github.com/xtaci/fdpasser/transport"

// fakeTransport is a scripted transport.Transport for exercising SendQueue
// and RecvQueue logic without real kernel descriptor passing.
type fakeTransport struct {
	sendResults []error
	sendCalls   []int

	recvFDs  []int
	recvErrs []error
	recvIdx  int

	closed bool
}

func (f *fakeTransport) SendOne(fd int) error {
	f.sendCalls = append(f.sendCalls, fd)
	if len(f.sendResults) == 0 {
		return nil
	}
	err := f.sendResults[0]
	f.sendResults = f.sendResults[1:]
	return err
}

func (f *fakeTransport) RecvOne() (int, error) {
	if f.recvIdx >= len(f.recvFDs) {
		return -1, transport.ErrWouldBlock
	}
	fd, err := f.recvFDs[f.recvIdx], f.recvErrs[f.recvIdx]
	f.recvIdx++
	return fd, err
}

func (f *fakeTransport) Close() error { f.closed = true; return nil }
func (f *fakeTransport) Fd() int      { return -1 }

// queueRecv schedules one RecvOne() result.
func (f *fakeTransport) queueRecv(fd int, err error) {
	f.recvFDs = append(f.recvFDs, fd)
	f.recvErrs = append(f.recvErrs, err)
}
