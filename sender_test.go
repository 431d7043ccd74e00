package fsock

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newPipeSocketWithQueue(t *testing.T) (*Socket, net.Conn) {
	t.Helper()
	s, remote := newPipeSocket(t)
	s.queue = newOutboundQueue(0)
	return s, remote
}

func TestSenderLoopDrainsQueueInOrder(t *testing.T) {
	s, remote := newPipeSocketWithQueue(t)
	go s.senderLoop()

	require.NoError(t, s.Send(NewFrame([]byte("first"))))
	require.NoError(t, s.Send(NewFrame([]byte("second"))))

	var p inboundParser
	buf := make([]byte, 256)
	var got []Frame
	for len(got) < 2 {
		_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := remote.Read(buf)
		require.NoError(t, err)
		require.NoError(t, p.parse(buf, n, 0))
		got = append(got, p.drain()...)
	}

	require.Len(t, got, 2)
	require.Equal(t, "first", string(got[0].Payload()))
	require.Equal(t, "second", string(got[1].Payload()))
}

func TestSenderLoopWakesFromParkAndWritesFrame(t *testing.T) {
	s, remote := newPipeSocketWithQueue(t)
	go s.senderLoop()

	require.NoError(t, s.Send(NewFrame([]byte("only"))))

	encoded := encodeFrame(NewFrame([]byte("only")))
	buf := make([]byte, len(encoded))
	_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)
	require.Equal(t, encoded, buf)
}

func TestSenderLoopExitsSilentlyOnLocalTeardownWhileParked(t *testing.T) {
	s, _ := newPipeSocketWithQueue(t)
	finished := make(chan struct{})
	go func() {
		s.senderLoop()
		close(finished)
	}()

	// senderLoop starts in ParkedOnTrigger with nothing ever sent; without
	// the done-channel wakeup this would block forever.
	time.Sleep(20 * time.Millisecond)
	s.teardown()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("senderLoop did not exit after local teardown while parked")
	}
}
