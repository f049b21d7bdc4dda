//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package transport

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpairT(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

func TestBSDTransportRoundTrip(t *testing.T) {
	a, b := socketpairT(t)
	sender := NewBSD(a)
	receiver := NewBSD(b)
	defer sender.Close()
	defer receiver.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "fdpasser")
	require.NoError(t, err)
	defer tmp.Close()

	require.NoError(t, sender.SendOne(int(tmp.Fd())))

	fd, err := receiver.RecvOne()
	require.NoError(t, err)
	defer unix.Close(fd)

	var st, st2 unix.Stat_t
	require.NoError(t, unix.Fstat(int(tmp.Fd()), &st))
	require.NoError(t, unix.Fstat(fd, &st2))
	require.Equal(t, st.Ino, st2.Ino, "received descriptor must name the same open file")
}

func TestBSDTransportWouldBlock(t *testing.T) {
	a, _ := socketpairT(t)
	receiver := NewBSD(a)
	defer receiver.Close()

	_, err := receiver.RecvOne()
	require.ErrorIs(t, err, ErrWouldBlock)
}
