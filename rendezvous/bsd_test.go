//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package rendezvous

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSocketpair(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	_, err = unix.Write(a, []byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestServerAcceptConnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fdpasser.sock")

	ln, err := Server(path, 0)
	require.NoError(t, err)
	defer ln.Close()

	clientFD, err := Connect(path)
	require.NoError(t, err)
	defer unix.Close(clientFD)

	serverFD, err := ln.Accept()
	require.NoError(t, err)
	defer unix.Close(serverFD)

	_, err = unix.Write(clientFD, []byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := unix.Read(serverFD, buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}
