package session_test

import (
	"testing"
	"time"

	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/reactor"
	"github.com/denbykov/jkreactor/internal/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestReactor(t *testing.T) *reactor.Reactor {
	r := reactor.New(logx.Discard())
	require.NoError(t, r.Init())
	timers := core.NewTimerHeap(64)
	r.RegisterTimeHeap(timers)
	t.Cleanup(func() { r.Shutdown() })
	return r
}

func boundListener(t *testing.T) (l *core.Listener, port int) {
	fd, err := netio.Listen(0)
	require.NoError(t, err)
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	return core.NewListener(fd), sa.(*unix.SockaddrInet4).Port
}

func pumpUntil(t *testing.T, r *reactor.Reactor, done func() bool) {
	require.Eventually(t, func() bool {
		require.NoError(t, r.ProcessEvents(20))
		r.ProcessTimers(time.Now().UnixMilli())
		return done()
	}, 2*time.Second, time.Millisecond)
}

func TestTCPEchoSessionRoundTrip(t *testing.T) {
	r := newTestReactor(t)
	deps := session.EchoDeps{Reactor: r, Log: logx.Discard()}

	listener, port := boundListener(t)
	listener.Accept.Handler = r.AcceptLoop(listener, session.NewTCPEchoOnAccept(deps))
	require.NoError(t, r.AddListener(listener))

	clientFD, err := netio.Connect(&unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(clientFD) })

	msg := []byte("echo me")
	require.Eventually(t, func() bool {
		_, ok, serr := netio.Send(clientFD, msg)
		return serr == nil && ok
	}, time.Second, time.Millisecond)

	buf := make([]byte, 32)
	var n int
	pumpUntil(t, r, func() bool {
		got, ok, rerr := netio.Recv(clientFD, buf)
		if rerr != nil || !ok || got == 0 {
			return false
		}
		n = got
		return true
	})
	require.Equal(t, msg, buf[:n])
}

func TestUDPEchoSessionRoundTrip(t *testing.T) {
	r := newTestReactor(t)
	deps := session.EchoDeps{Reactor: r, Log: logx.Discard()}

	sockFD, err := netio.ListenUDP(0)
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(sockFD) })
	sa, err := unix.Getsockname(sockFD)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	timers := core.NewTimerHeap(64)
	sock := core.NewUDPSocket(sockFD, timers, session.NewUDPEchoSession(deps))
	require.NoError(t, r.AddUDPSock(sock))

	peerFD, err := netio.ListenUDP(0)
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(peerFD) })

	msg := []byte("udp echo")
	_, err = netio.SendTo(peerFD, msg, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)

	buf := make([]byte, 32)
	var n int
	pumpUntil(t, r, func() bool {
		got, _, ok, rerr := netio.RecvFrom(peerFD, buf)
		if rerr != nil || !ok {
			return false
		}
		n = got
		return true
	})
	require.Equal(t, msg, buf[:n])
}

func TestTCPProxySessionRoundTrip(t *testing.T) {
	r := newTestReactor(t)
	echoDeps := session.EchoDeps{Reactor: r, Log: logx.Discard()}

	upstream, upstreamPort := boundListener(t)
	upstream.Accept.Handler = r.AcceptLoop(upstream, session.NewTCPEchoOnAccept(echoDeps))
	require.NoError(t, r.AddListener(upstream))

	remoteAddr := core.NewAddressFromTCP([]byte{127, 0, 0, 1}, uint16(upstreamPort))
	proxyDeps := session.ProxyDeps{EchoDeps: echoDeps, RemoteAddr: remoteAddr}

	front, frontPort := boundListener(t)
	front.Accept.Handler = r.AcceptLoop(front, session.NewTCPProxyOnAccept(proxyDeps))
	require.NoError(t, r.AddListener(front))

	clientFD, err := netio.Connect(&unix.SockaddrInet4{Port: frontPort, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)
	t.Cleanup(func() { netio.Close(clientFD) })

	msg := []byte("through the proxy")
	require.Eventually(t, func() bool {
		_, ok, serr := netio.Send(clientFD, msg)
		return serr == nil && ok
	}, time.Second, time.Millisecond)

	buf := make([]byte, 64)
	var n int
	pumpUntil(t, r, func() bool {
		got, ok, rerr := netio.Recv(clientFD, buf)
		if rerr != nil || !ok || got == 0 {
			return false
		}
		n = got
		return true
	})
	require.Equal(t, msg, buf[:n])
}
