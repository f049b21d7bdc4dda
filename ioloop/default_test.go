//go:build !windows
// +build !windows

package ioloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDefaultArmRead(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	w := NewDefault()
	defer w.Shutdown()

	fired := make(chan struct{}, 1)
	w.ArmRead(fds[0], func() { fired <- struct{}{} })

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("read callback did not fire")
	}
}

func TestDefaultScheduleTimer(t *testing.T) {
	w := NewDefault()
	defer w.Shutdown()

	fired := make(chan struct{}, 1)
	w.ScheduleTimer(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
