package session

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/status"
)

// remoteIdleTimeoutMs is longer than echoIdleTimeoutMs so the remote side's
// own timer only fires after the client side's silence would already have
// torn the session down, per §4.7.
const remoteIdleTimeoutMs = 6000

type proxyBuf struct {
	data  []byte
	taken int
}

// proxyState binds the client and upstream-remote connections of one
// proxied session, per §4.7.
type proxyState struct {
	client *core.Connection
	remote *core.Connection // nil if the upstream connect failed

	toRemote proxyBuf
	toClient proxyBuf

	clientTimerID core.TimerID
	remoteTimerID core.TimerID
}

// ProxyDeps bundles what the proxy handler needs beyond EchoDeps: where to
// dial the upstream peer.
type ProxyDeps struct {
	EchoDeps
	RemoteAddr core.Address
}

// NewEchoProxyHandler returns the event handler for proxy mode, attached
// to both the accepted client connection and (once dialed) the upstream
// remote connection.
func NewEchoProxyHandler(deps ProxyDeps) core.EventHandler {
	var handler core.EventHandler
	handler = func(ev *core.Event) {
		conn := ev.Conn
		if conn.Err {
			stopProxy(deps, conn)
			return
		}

		st, _ := conn.Data.(*proxyState)
		if st == nil {
			st = newProxyState(deps, conn, handler)
			if st == nil {
				// Connect failed; conn (the client) has already been
				// torn down by newProxyState.
				return
			}
			if deps.Metrics != nil {
				deps.Metrics.SessionStarted()
			}
		}

		client := conn == st.client

		switch {
		case ev.Dir == core.DirRead && client:
			doProxyRead(deps, st, st.client, &st.toRemote, st.remote)
		case ev.Dir == core.DirRead && !client:
			doProxyRead(deps, st, st.remote, &st.toClient, st.client)
		case ev.Dir == core.DirWrite && client:
			doProxyWrite(deps, st, st.client, &st.toClient)
		default:
			doProxyWrite(deps, st, st.remote, &st.toRemote)
		}
	}
	return handler
}

func newProxyState(deps ProxyDeps, client *core.Connection, handler core.EventHandler) *proxyState {
	st := &proxyState{
		client:   client,
		toRemote: proxyBuf{data: make([]byte, netBufferSize)},
		toClient: proxyBuf{data: make([]byte, netBufferSize)},
	}
	client.Data = st

	remote, err := Connect(deps.Reactor, deps.RemoteAddr)
	if err != nil {
		deps.Log.Errorf("echo_proxy: failed to connect upstream %s: %v", deps.RemoteAddr, err)
		stopProxy(deps.EchoDeps, client)
		return nil
	}
	remote.Data = st
	remote.Read.Handler = handler
	remote.Write.Handler = handler
	st.remote = remote

	if err := deps.Reactor.EnableWrite(remote); err != nil {
		deps.Log.Errorf("echo_proxy: enable write on upstream fd %d: %v", remote.FD, err)
	}

	clientTimerID, err := deps.Reactor.AddTimer(nowMillis()+echoIdleTimeoutMs, proxyTimerHandler(deps), st)
	if err != nil {
		deps.Log.Errorf("echo_proxy: failed to arm client idle timer: %v", err)
	}
	st.clientTimerID = clientTimerID

	remoteTimerID, err := deps.Reactor.AddTimer(nowMillis()+remoteIdleTimeoutMs, proxyTimerHandler(deps), st)
	if err != nil {
		deps.Log.Errorf("echo_proxy: failed to arm remote idle timer: %v", err)
	}
	st.remoteTimerID = remoteTimerID

	return st
}

func proxyTimerHandler(deps ProxyDeps) core.TimerHandler {
	return func(data any) {
		st := data.(*proxyState)
		deps.Log.Debugf("echo_proxy: idle timeout, tearing down session for client fd %d", st.client.FD)
		stopProxy(deps.EchoDeps, st.client)
	}
}

func rearmProxyTimers(deps ProxyDeps, st *proxyState) {
	deps.Reactor.CancelTimer(st.clientTimerID)
	deps.Reactor.CancelTimer(st.remoteTimerID)
	id, err := deps.Reactor.AddTimer(nowMillis()+echoIdleTimeoutMs, proxyTimerHandler(deps), st)
	if err != nil {
		deps.Log.Errorf("echo_proxy: failed to rearm client idle timer: %v", err)
	}
	st.clientTimerID = id

	id, err = deps.Reactor.AddTimer(nowMillis()+remoteIdleTimeoutMs, proxyTimerHandler(deps), st)
	if err != nil {
		deps.Log.Errorf("echo_proxy: failed to rearm remote idle timer: %v", err)
	}
	st.remoteTimerID = id
}

func doProxyRead(deps ProxyDeps, st *proxyState, conn *core.Connection, buf *proxyBuf, other *core.Connection) {
	spaceLeft := len(buf.data) - buf.taken
	if spaceLeft <= 0 {
		deps.Log.Warnf("echo_proxy: out of buffer space on fd %d", conn.FD)
		stopProxy(deps.EchoDeps, conn)
		return
	}

	n, peerClosed, err := netio.ConnRecv(conn, buf.data[buf.taken:])
	if peerClosed {
		stopProxy(deps.EchoDeps, conn)
		return
	}
	if err != nil {
		deps.Log.Warnf("echo_proxy: recv on fd %d: %v", conn.FD, err)
		stopProxy(deps.EchoDeps, conn)
		return
	}
	if n == 0 {
		return
	}

	buf.taken += n

	if err := deps.Reactor.DisableRead(conn); err != nil {
		deps.Log.Errorf("echo_proxy: disable read on fd %d: %v", conn.FD, err)
	}
	if err := deps.Reactor.EnableWrite(other); err != nil {
		deps.Log.Errorf("echo_proxy: enable write on fd %d: %v", other.FD, err)
	}
	rearmProxyTimers(deps, st)
}

func doProxyWrite(deps ProxyDeps, st *proxyState, conn *core.Connection, buf *proxyBuf) {
	sent, err := netio.ConnSend(conn, buf.data[:buf.taken])
	if err != nil {
		if status.Is(err, status.WouldBlock) {
			return
		}
		deps.Log.Warnf("echo_proxy: send on fd %d: %v", conn.FD, err)
		stopProxy(deps.EchoDeps, conn)
		return
	}

	buf.taken -= sent
	if buf.taken != 0 {
		copy(buf.data, buf.data[sent:sent+buf.taken])
		return
	}

	if err := deps.Reactor.DisableWrite(conn); err != nil {
		deps.Log.Errorf("echo_proxy: disable write on fd %d: %v", conn.FD, err)
	}
	if err := deps.Reactor.EnableRead(conn); err != nil {
		deps.Log.Errorf("echo_proxy: enable read on fd %d: %v", conn.FD, err)
	}
	rearmProxyTimers(deps, st)
	if deps.Metrics != nil {
		deps.Metrics.BytesRelayedAdd(sent)
	}
}

// stopProxy tears down both sides of a proxy session. It tolerates conn
// having no session state yet (an error observed before the first event
// finished constructing it) and a nil remote (the upstream connect never
// succeeded).
func stopProxy(deps EchoDeps, conn *core.Connection) {
	st, _ := conn.Data.(*proxyState)
	if st == nil {
		if err := deps.Reactor.TeardownConn(conn); err != nil {
			deps.Log.Errorf("echo_proxy: teardown conn fd %d: %v", conn.FD, err)
		}
		_ = netio.Close(conn.FD)
		return
	}

	deps.Reactor.CancelTimer(st.clientTimerID)
	deps.Reactor.CancelTimer(st.remoteTimerID)
	if deps.Metrics != nil {
		deps.Metrics.SessionStopped()
	}

	if err := deps.Reactor.TeardownConn(st.client); err != nil {
		deps.Log.Errorf("echo_proxy: teardown client fd %d: %v", st.client.FD, err)
	}
	_ = netio.Close(st.client.FD)

	if st.remote != nil {
		if err := deps.Reactor.TeardownConn(st.remote); err != nil {
			deps.Log.Errorf("echo_proxy: teardown remote fd %d: %v", st.remote.FD, err)
		}
		_ = netio.Close(st.remote.FD)
	}
}
