// Package session implements the two end-user session state machines —
// echo and echo-proxy — driven entirely by reactor event callbacks, per
// §4.6/§4.7. It is grounded on original_source's echo/echo_handler.c and
// echo/echo_proxy_handler.c, generalised to share one code path across TCP
// and UDP connections via netio.ConnRecv/ConnSend.
package session

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/denbykov/jkreactor/internal/metrics"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/reactor"
	"github.com/denbykov/jkreactor/internal/status"
)

// netBufferSize is the per-direction in-flight buffer, per §4.6/§4.7 —
// the same NET_BUFFER_SIZE the original C source uses for both echo modes.
const netBufferSize = 4096

// echoIdleTimeoutMs is the idle timeout before an echo session is reaped,
// per §4.6: "arm a 5-second idle timer whose callback tears down the
// session".
const echoIdleTimeoutMs = 5000

// echoState is the per-connection session context (the spec's `conn.data`
// opaque pointer) for plain echo mode.
type echoState struct {
	conn    *core.Connection
	buf     []byte
	taken   int
	timerID core.TimerID
}

// EchoDeps bundles what every session constructor needs from main.go.
// Metrics may be nil; counting is skipped when it is.
type EchoDeps struct {
	Reactor *reactor.Reactor
	Log     *logx.Logger
	Metrics *metrics.Counters
}

// NewEchoHandler returns the event handler both TCP accept and UDP peer
// discovery attach to a freshly built Connection, per §4.6.
func NewEchoHandler(deps EchoDeps) core.EventHandler {
	return func(ev *core.Event) {
		conn := ev.Conn
		if conn.Err {
			stopEcho(deps, conn)
			return
		}

		st, _ := conn.Data.(*echoState)
		if st == nil {
			st = &echoState{conn: conn, buf: make([]byte, netBufferSize)}
			conn.Data = st
			armEchoTimer(deps, st)
			if deps.Metrics != nil {
				deps.Metrics.SessionStarted()
			}
		}

		if ev.Dir == core.DirWrite {
			handleEchoWrite(deps, ev, st)
		} else {
			handleEchoRead(deps, ev, st)
		}
	}
}

func armEchoTimer(deps EchoDeps, st *echoState) {
	id, err := deps.Reactor.AddTimer(nowMillis()+echoIdleTimeoutMs, echoTimerHandler(deps), st)
	if err != nil {
		deps.Log.Errorf("echo: failed to arm idle timer: %v", err)
		return
	}
	st.timerID = id
}

func rearmEchoTimer(deps EchoDeps, st *echoState) {
	deps.Reactor.CancelTimer(st.timerID)
	armEchoTimer(deps, st)
}

func echoTimerHandler(deps EchoDeps) core.TimerHandler {
	return func(data any) {
		st := data.(*echoState)
		deps.Log.Debugf("echo: idle timeout on fd %d, tearing down", st.conn.FD)
		stopEcho(deps, st.conn)
	}
}

func handleEchoRead(deps EchoDeps, ev *core.Event, st *echoState) {
	spaceLeft := len(st.buf) - st.taken
	if spaceLeft <= 0 {
		deps.Log.Warnf("echo: out of buffer space on fd %d", st.conn.FD)
		stopEcho(deps, st.conn)
		return
	}

	n, peerClosed, err := netio.ConnRecv(st.conn, st.buf[st.taken:])
	if peerClosed {
		stopEcho(deps, st.conn)
		return
	}
	if err != nil {
		deps.Log.Warnf("echo: recv on fd %d: %v", st.conn.FD, err)
		stopEcho(deps, st.conn)
		return
	}
	if n == 0 {
		// EAGAIN with nothing read: edge-triggered readiness already
		// consumed, wait for the next one.
		return
	}

	st.taken += n

	if err := deps.Reactor.DisableRead(st.conn); err != nil {
		deps.Log.Errorf("echo: disable read on fd %d: %v", st.conn.FD, err)
	}
	if err := deps.Reactor.EnableWrite(st.conn); err != nil {
		deps.Log.Errorf("echo: enable write on fd %d: %v", st.conn.FD, err)
	}
	rearmEchoTimer(deps, st)
}

func handleEchoWrite(deps EchoDeps, ev *core.Event, st *echoState) {
	sent, err := netio.ConnSend(st.conn, st.buf[:st.taken])
	if err != nil {
		if status.Is(err, status.WouldBlock) {
			return
		}
		deps.Log.Warnf("echo: send on fd %d: %v", st.conn.FD, err)
		stopEcho(deps, st.conn)
		return
	}

	st.taken -= sent
	if st.taken != 0 {
		copy(st.buf, st.buf[sent:sent+st.taken])
		return
	}

	if err := deps.Reactor.DisableWrite(st.conn); err != nil {
		deps.Log.Errorf("echo: disable write on fd %d: %v", st.conn.FD, err)
	}
	if err := deps.Reactor.EnableRead(st.conn); err != nil {
		deps.Log.Errorf("echo: enable read on fd %d: %v", st.conn.FD, err)
	}
	rearmEchoTimer(deps, st)
	if deps.Metrics != nil {
		deps.Metrics.BytesRelayedAdd(sent)
	}
}

func stopEcho(deps EchoDeps, conn *core.Connection) {
	st, _ := conn.Data.(*echoState)
	if st != nil {
		deps.Reactor.CancelTimer(st.timerID)
		if deps.Metrics != nil {
			deps.Metrics.SessionStopped()
		}
	}

	if err := deps.Reactor.TeardownConn(conn); err != nil {
		deps.Log.Errorf("echo: teardown conn fd %d: %v", conn.FD, err)
	}

	if conn.Kind == core.ConnTCP {
		_ = netio.Close(conn.FD)
	}
}
