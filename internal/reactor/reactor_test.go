package reactor

import (
	"testing"
	"time"

	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestReactor(t *testing.T) *Reactor {
	r := New(logx.Discard())
	require.NoError(t, r.Init())
	t.Cleanup(func() { r.Shutdown() })
	return r
}

func tcpListenerPair(t *testing.T) (listenFD int, port int) {
	fd, err := netio.Listen(0)
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(fd) })
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	return fd, sa.(*unix.SockaddrInet4).Port
}

func TestReactorAcceptAndEchoOverTCP(t *testing.T) {
	r := newTestReactor(t)

	listenFD, port := tcpListenerPair(t)
	listener := core.NewListener(listenFD)

	var accepted *core.Connection
	listener.Accept.Handler = r.AcceptLoop(listener, func(fd int) {
		conn := core.NewTCPConnection(fd)
		conn.Read.Handler = func(ev *core.Event) {
			buf := make([]byte, 64)
			n, _, err := netio.ConnRecv(ev.Conn, buf)
			require.NoError(t, err)
			if n > 0 {
				_, err := netio.ConnSend(ev.Conn, buf[:n])
				require.NoError(t, err)
			}
		}
		require.NoError(t, r.AddConn(conn, conn.Read))
		accepted = conn
	})
	require.NoError(t, r.AddListener(listener))

	clientFD, err := netio.Connect(&unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(clientFD) })

	msg := []byte("ping")
	require.Eventually(t, func() bool {
		_, ok, serr := netio.Send(clientFD, msg)
		return serr == nil && ok
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return r.ProcessEvents(50) == nil && accepted != nil
	}, time.Second, time.Millisecond)

	buf := make([]byte, 16)
	require.Eventually(t, func() bool {
		n, ok, rerr := netio.Recv(clientFD, buf)
		return rerr == nil && ok && n == len(msg)
	}, time.Second, time.Millisecond)
	require.Equal(t, msg, buf[:len(msg)])
}

func TestReactorTimerFiresAfterExpiry(t *testing.T) {
	r := newTestReactor(t)
	timers := core.NewTimerHeap(8)
	r.RegisterTimeHeap(timers)

	fired := make(chan struct{}, 1)
	now := time.Now().UnixMilli()
	_, err := r.AddTimer(now+10, func(data any) {
		fired <- struct{}{}
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r.ProcessTimers(time.Now().UnixMilli())
		select {
		case <-fired:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestReactorCancelTimerPreventsFire(t *testing.T) {
	r := newTestReactor(t)
	timers := core.NewTimerHeap(8)
	r.RegisterTimeHeap(timers)

	fired := false
	now := time.Now().UnixMilli()
	id, err := r.AddTimer(now+10, func(data any) {
		fired = true
	}, nil)
	require.NoError(t, err)
	r.CancelTimer(id)

	time.Sleep(20 * time.Millisecond)
	r.ProcessTimers(time.Now().UnixMilli())
	require.False(t, fired)
}

func TestReactorNextTimeoutMsCapsAtMax(t *testing.T) {
	r := newTestReactor(t)
	require.Equal(t, 500, r.NextTimeoutMs(0, 500))

	timers := core.NewTimerHeap(8)
	r.RegisterTimeHeap(timers)
	require.Equal(t, 500, r.NextTimeoutMs(0, 500))

	_, err := r.AddTimer(1000, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 500, r.NextTimeoutMs(0, 500))
	require.Equal(t, 100, r.NextTimeoutMs(900, 500))
	require.Equal(t, 0, r.NextTimeoutMs(2000, 500))
}

func TestReactorUDPSocketRoundTrip(t *testing.T) {
	r := newTestReactor(t)
	timers := core.NewTimerHeap(8)
	r.RegisterTimeHeap(timers)

	sockFD, err := netio.ListenUDP(0)
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(sockFD) })
	sa, err := unix.Getsockname(sockFD)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	received := make(chan []byte, 1)
	sock := core.NewUDPSocket(sockFD, timers, func(s *core.UDPSocket, remote core.Address) *core.Connection {
		conn := core.NewUDPConnection(s, remote)
		conn.Read.Enabled = true
		conn.Read.Handler = func(ev *core.Event) {
			buf := make([]byte, 64)
			n, _, rerr := netio.ConnRecv(ev.Conn, buf)
			require.NoError(t, rerr)
			cp := append([]byte(nil), buf[:n]...)
			received <- cp
		}
		return conn
	})
	require.NoError(t, r.AddUDPSock(sock))

	peerFD, err := netio.ListenUDP(0)
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(peerFD) })

	msg := []byte("udp hello")
	_, err = netio.SendTo(peerFD, msg, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		require.NoError(t, r.ProcessEvents(50))
		select {
		case got := <-received:
			require.Equal(t, msg, got)
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
