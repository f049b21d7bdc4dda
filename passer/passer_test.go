//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package passer

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/xtaci/fdpasser/ioloop"
	"github.com/xtaci/fdpasser/rendezvous"
)

// newConnectedPassers returns two role-settled Passers sharing a socketpair,
// as if each were constructed with the one-endpoint form: the caller has
// already established the connection and hands each side its own fd.
func newConnectedPassers(t *testing.T) (*Passer, *Passer) {
	t.Helper()
	a, b, err := rendezvous.Socketpair()
	require.NoError(t, err)

	p1, err := New(Config{FDs: []int{a}, Watcher: ioloop.NewDefault()})
	require.NoError(t, err)
	p2, err := New(Config{FDs: []int{b}, Watcher: ioloop.NewDefault()})
	require.NoError(t, err)

	t.Cleanup(func() {
		p1.Shutdown()
		p2.Shutdown()
	})
	return p1, p2
}

func namedTempFile(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fdpasser")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// TestFIFOPerDirection verifies that three descriptors sent in order
// arrive in the same order.
func TestFIFOPerDirection(t *testing.T) {
	sender, receiver := newConnectedPassers(t)

	type delivery struct {
		idx int
		fd  int
	}
	results := make(chan delivery, 3)

	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, receiver.PushRecvFH(func(fd int, err error) {
			require.NoError(t, err)
			results <- delivery{idx: i, fd: fd}
		}))
	}

	files := make([]*os.File, 3)
	for i := 0; i < 3; i++ {
		files[i] = namedTempFile(t, string(rune('A'+i)))
		fd, err := unix.Dup(int(files[i].Fd()))
		require.NoError(t, err)
		require.NoError(t, sender.PushSendFH(fd, nil))
	}

	var order []int
	for i := 0; i < 3; i++ {
		select {
		case d := <-results:
			order = append(order, d.idx)
			buf := make([]byte, 1)
			_, err := unix.Pread(d.fd, buf, 0)
			require.NoError(t, err)
			require.Equal(t, string(rune('A'+d.idx)), string(buf))
			unix.Close(d.fd)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

// TestBidirectional verifies that one Passer pair makes progress in both
// directions at once.
func TestBidirectional(t *testing.T) {
	p1, p2 := newConnectedPassers(t)

	aToB := make(chan int, 1)
	bToA := make(chan int, 1)
	require.NoError(t, p2.PushRecvFH(func(fd int, err error) { require.NoError(t, err); aToB <- fd }))
	require.NoError(t, p1.PushRecvFH(func(fd int, err error) { require.NoError(t, err); bToA <- fd }))

	f1 := namedTempFile(t, "from-p1")
	f2 := namedTempFile(t, "from-p2")
	fd1, _ := unix.Dup(int(f1.Fd()))
	fd2, _ := unix.Dup(int(f2.Fd()))

	require.NoError(t, p1.PushSendFH(fd1, nil))
	require.NoError(t, p2.PushSendFH(fd2, nil))

	select {
	case fd := <-aToB:
		unix.Close(fd)
	case <-time.After(2 * time.Second):
		t.Fatal("p1->p2 delivery timed out")
	}
	select {
	case fd := <-bToA:
		unix.Close(fd)
	case <-time.After(2 * time.Second):
		t.Fatal("p2->p1 delivery timed out")
	}
}

// TestPushNeverBlocks verifies that pushing before the peer has engaged
// returns immediately.
func TestPushNeverBlocks(t *testing.T) {
	_, receiver := newConnectedPassers(t)
	done := make(chan struct{})
	go func() {
		require.NoError(t, receiver.PushRecvFH(func(int, error) {}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push_recv_fh blocked")
	}
}

func TestPushOnUnsettledRoleIsProgrammerError(t *testing.T) {
	a, b, err := rendezvous.Socketpair()
	require.NoError(t, err)
	defer unix.Close(b)

	p, err := New(Config{FDs: []int{a, b}})
	require.NoError(t, err)
	defer p.Shutdown()

	err = p.PushSendFH(1, nil)
	var pe *ProgrammerError
	require.ErrorAs(t, err, &pe)
}

func TestIAmParentThenChildIsProgrammerError(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.IAmParent())
	require.Equal(t, StateParent, p.State())

	err = p.IAmChild()
	var pe *ProgrammerError
	require.ErrorAs(t, err, &pe)
}

func TestShutdownFailsPendingOperations(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, p.IAmParent())

	var sendErr, recvErr error
	f := namedTempFile(t, "x")
	fd, _ := unix.Dup(int(f.Fd()))
	require.NoError(t, p.PushSendFH(fd, func(err error) { sendErr = err }))
	require.NoError(t, p.PushRecvFH(func(_ int, err error) { recvErr = err }))

	p.Shutdown()

	require.Error(t, sendErr)
	require.Error(t, recvErr)
	require.Equal(t, StateShutdown, p.State())

	// pushing after shutdown is rejected, not silently accepted
	require.ErrorIs(t, p.PushSendFH(fd, nil), ErrShutdown)
}
