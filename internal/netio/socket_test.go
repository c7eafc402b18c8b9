package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTCPListenConnectAcceptSendRecv(t *testing.T) {
	listenFD, err := Listen(0)
	require.NoError(t, err)
	defer Close(listenFD)

	sa, err := unix.Getsockname(listenFD)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	clientFD, err := Connect(&unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)
	defer Close(clientFD)

	var serverFD int
	require.Eventually(t, func() bool {
		fd, ok, aerr := Accept(listenFD)
		if aerr != nil || !ok {
			return false
		}
		serverFD = fd
		return true
	}, time.Second, time.Millisecond)
	defer Close(serverFD)

	// Connect may still be EINPROGRESS for an instant; give it a beat and
	// let SocketError confirm it cleared.
	require.Eventually(t, func() bool {
		return SocketError(clientFD) == nil
	}, time.Second, time.Millisecond)

	msg := []byte("ping")
	require.Eventually(t, func() bool {
		n, ok, serr := Send(clientFD, msg)
		return serr == nil && ok && n == len(msg)
	}, time.Second, time.Millisecond)

	buf := make([]byte, 16)
	var n int
	require.Eventually(t, func() bool {
		got, ok, rerr := Recv(serverFD, buf)
		if rerr != nil || !ok || got == 0 {
			return false
		}
		n = got
		return true
	}, time.Second, time.Millisecond)
	require.Equal(t, msg, buf[:n])
}

func TestAcceptReportsEAGAINWhenEmpty(t *testing.T) {
	listenFD, err := Listen(0)
	require.NoError(t, err)
	defer Close(listenFD)

	_, ok, err := Accept(listenFD)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUDPListenSendRecvFrom(t *testing.T) {
	serverFD, err := ListenUDP(0)
	require.NoError(t, err)
	defer Close(serverFD)

	sa, err := unix.Getsockname(serverFD)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	clientFD, err := ListenUDP(0)
	require.NoError(t, err)
	defer Close(clientFD)

	to := &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
	msg := []byte("hello")
	ok, err := SendTo(clientFD, msg, to)
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, 16)
	var n int
	require.Eventually(t, func() bool {
		got, _, recvOK, rerr := RecvFrom(serverFD, buf)
		if rerr != nil || !recvOK {
			return false
		}
		n = got
		return true
	}, time.Second, time.Millisecond)
	require.Equal(t, msg, buf[:n])
}

func TestCloseIgnoresDoubleClose(t *testing.T) {
	fd, err := Listen(0)
	require.NoError(t, err)
	require.NoError(t, Close(fd))
	require.NoError(t, Close(fd))
}
