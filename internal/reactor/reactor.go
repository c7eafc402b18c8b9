// Package reactor is the single-threaded, edge-triggered event
// demultiplexer: an epoll backend plus the timer heap, grounded directly
// on original_source's os/linux/backends/epoll_backend.c and core/event.c,
// using golang.org/x/sys/unix in place of cgo syscalls and an fd-keyed Go
// map in place of storing a raw event pointer in epoll_event.data (kernel-
// held memory must not hold a Go pointer the GC can move or collect — the
// same constraint the gnet example solves with its fd->conn map).
package reactor

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/denbykov/jkreactor/internal/metrics"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/status"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxEvents bounds a single epoll_wait batch, matching the original
// backend's EPOLL_MAX_EVENTS.
const maxEvents = 512

// fdOwner is what the reactor keeps per registered fd: enough to find the
// Connection/Listener/UDPSocket an epoll_wait readiness notification is
// for, without storing a pointer inside the kernel's epoll_event.
type fdOwner struct {
	listener *core.Listener
	conn     *core.Connection
	udpSock  *core.UDPSocket
}

// Reactor owns the epoll fd, the registered-fd table, and the process's
// one timer heap, per §5.
type Reactor struct {
	epfd    int
	fds     map[int]*fdOwner
	events  []unix.EpollEvent
	timers  *core.TimerHeap
	log     *logx.Logger
	metrics *metrics.Counters
}

// SetMetrics attaches an optional counters collector; nil disables counting.
func (r *Reactor) SetMetrics(c *metrics.Counters) {
	r.metrics = c
}

// New creates a Reactor. Call Init before using it.
func New(log *logx.Logger) *Reactor {
	return &Reactor{
		epfd:   -1,
		fds:    make(map[int]*fdOwner),
		events: make([]unix.EpollEvent, maxEvents),
		log:    log,
	}
}

// Init creates the underlying epoll instance.
func (r *Reactor) Init() error {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return status.Wrap(status.Generic, err, "epoll_create1")
	}
	r.epfd = fd
	return nil
}

// Shutdown closes the epoll fd. It does not close any registered
// connection/listener/socket fds — callers own those.
func (r *Reactor) Shutdown() error {
	if r.epfd == -1 {
		return nil
	}
	err := unix.Close(r.epfd)
	r.epfd = -1
	if err != nil {
		return status.Wrap(status.Generic, err, "close epoll fd")
	}
	return nil
}

// RegisterTimeHeap attaches the timer heap ProcessTimers drains.
func (r *Reactor) RegisterTimeHeap(th *core.TimerHeap) {
	r.timers = th
}

// AddTimer arms a one-shot timer, delegating to the registered heap.
func (r *Reactor) AddTimer(expiry int64, handler core.TimerHandler, data any) (core.TimerID, error) {
	if r.timers == nil {
		return core.InvalidTimerID, status.New(status.Generic, "reactor: no timer heap registered")
	}
	return r.timers.Add(expiry, handler, data)
}

// CancelTimer disarms a previously added timer.
func (r *Reactor) CancelTimer(id core.TimerID) {
	if r.timers != nil {
		r.timers.Cancel(id)
	}
}

func direction(ev *core.Event) uint32 {
	if ev.Dir == core.DirWrite {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

// AddListener registers a listener's accept event for read-readiness.
func (r *Reactor) AddListener(l *core.Listener) error {
	ev := l.Accept
	if ev.Enabled {
		return status.New(status.Generic, "reactor: listener accept event already enabled")
	}
	if err := r.ctl(unix.EPOLL_CTL_ADD, l.FD, direction(ev)); err != nil {
		return err
	}
	r.fds[l.FD] = &fdOwner{listener: l}
	ev.Enabled = true
	return nil
}

// DelListener removes a listener's fd from epoll entirely.
func (r *Reactor) DelListener(l *core.Listener) error {
	if err := r.ctl(unix.EPOLL_CTL_DEL, l.FD, 0); err != nil {
		return err
	}
	delete(r.fds, l.FD)
	l.Accept.Enabled = false
	return nil
}

// AddConn registers conn's fd with epoll, armed for the given initial
// direction. Pass nil for an outbound connect that isn't ready to read or
// write yet (§4.4): the fd is registered with no events, and a later
// EnableEvent arms it once the session decides which direction it wants.
func (r *Reactor) AddConn(conn *core.Connection, initial *core.Event) error {
	var mask uint32
	if initial != nil {
		mask = direction(initial)
	}
	if err := r.ctl(unix.EPOLL_CTL_ADD, conn.FD, mask); err != nil {
		return err
	}
	r.fds[conn.FD] = &fdOwner{conn: conn}
	if initial != nil {
		initial.Enabled = true
	}
	return nil
}

// DelConn removes conn's fd from epoll and clears both of its events.
func (r *Reactor) DelConn(conn *core.Connection) error {
	if err := r.ctl(unix.EPOLL_CTL_DEL, conn.FD, 0); err != nil {
		return err
	}
	delete(r.fds, conn.FD)
	conn.Read.Enabled = false
	conn.Write.Enabled = false
	return nil
}

// AddUDPSock registers a UDP socket's fd armed for both directions
// permanently — per §4.5, per-peer readiness is tracked in user space via
// the Peer Table and Write Queue, not per-peer epoll registrations.
func (r *Reactor) AddUDPSock(s *core.UDPSocket) error {
	mask := uint32(unix.EPOLLIN | unix.EPOLLOUT)
	if err := r.ctl(unix.EPOLL_CTL_ADD, s.FD, mask); err != nil {
		return err
	}
	r.fds[s.FD] = &fdOwner{udpSock: s}
	s.Event.Enabled = true
	r.bindUDPHandler(s)
	return nil
}

// DelUDPSock removes a UDP socket's fd from epoll.
func (r *Reactor) DelUDPSock(s *core.UDPSocket) error {
	if err := r.ctl(unix.EPOLL_CTL_DEL, s.FD, 0); err != nil {
		return err
	}
	delete(r.fds, s.FD)
	s.Event.Enabled = false
	return nil
}

// EnableEvent arms ev's direction. For a Connection this MODs the fd to
// watch ev's direction only, implicitly disabling its sibling — TCP
// connections are always half-duplex (exactly one of read/write armed).
func (r *Reactor) EnableEvent(ev *core.Event) error {
	if ev.Enabled {
		return status.New(status.Generic, "reactor: event already enabled")
	}
	if err := r.ctl(unix.EPOLL_CTL_MOD, ev.FD(), direction(ev)); err != nil {
		return err
	}
	ev.Enabled = true
	if ev.Owner == core.OwnerConnection {
		sibling := ev.Conn.Read
		if sibling == ev {
			sibling = ev.Conn.Write
		}
		sibling.Enabled = false
	}
	return nil
}

// DisableEvent MODs the fd to watch neither direction, without removing it
// from epoll — used when a connection has nothing to read or write yet.
func (r *Reactor) DisableEvent(ev *core.Event) error {
	if !ev.Enabled {
		return status.New(status.Generic, "reactor: event already disabled")
	}
	if err := r.ctl(unix.EPOLL_CTL_MOD, ev.FD(), 0); err != nil {
		return err
	}
	ev.Enabled = false
	return nil
}

func (r *Reactor) ctl(op int, fd int, mask uint32) error {
	var event unix.EpollEvent
	event.Events = mask | unix.EPOLLET
	event.Fd = int32(fd)
	if err := unix.EpollCtl(r.epfd, op, fd, &event); err != nil {
		return status.Wrap(status.Generic, err, "epoll_ctl")
	}
	return nil
}

// ProcessEvents blocks in epoll_wait for up to timeoutMs (-1 blocks
// forever) and dispatches every ready event's handler, per §4.2/§5's main
// loop. Error/hangup notifications set the owner's error flag before its
// handler runs, mirroring the invariant that session code always observes
// errors through Connection.Err rather than through a distinct callback.
func (r *Reactor) ProcessEvents(timeoutMs int) error {
	n, err := unix.EpollWait(r.epfd, r.events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return status.Wrap(status.Generic, err, "epoll_wait")
	}

	for i := 0; i < n; i++ {
		raw := r.events[i]
		fd := int(raw.Fd)
		owner, ok := r.fds[fd]
		if !ok {
			r.log.Warnf("reactor: readiness for unregistered fd %d", fd)
			continue
		}

		hangup := raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		r.dispatch(owner, raw.Events, hangup)
	}
	return nil
}

func (r *Reactor) dispatch(owner *fdOwner, mask uint32, hangup bool) {
	switch {
	case owner.listener != nil:
		if hangup {
			owner.listener.Error = true
		}
		r.log.Invariant(owner.listener.Accept.Handler != nil, "listener event has no handler")
		owner.listener.Accept.Handler(owner.listener.Accept)
	case owner.udpSock != nil:
		s := owner.udpSock
		s.Readable = mask&unix.EPOLLIN != 0
		s.Writable = mask&unix.EPOLLOUT != 0
		s.Error = hangup
		r.log.Invariant(s.Event.Handler != nil, "udp socket event has no handler")
		s.Event.Handler(s.Event)
	case owner.conn != nil:
		c := owner.conn
		if hangup {
			soErr := netio.SocketError(c.FD)
			if soErr == nil {
				soErr = errors.New("epoll reported EPOLLERR/EPOLLHUP")
			}
			c.SetError(soErr)
		}
		var ev *core.Event
		switch {
		case c.Read.Enabled:
			ev = c.Read
		case c.Write.Enabled:
			ev = c.Write
		default:
			r.log.Warnf("reactor: readiness on conn fd %d with neither direction armed", c.FD)
			return
		}
		r.log.Invariant(ev.Handler != nil, "connection event has no handler")
		ev.Handler(ev)
	default:
		r.log.Invariant(false, "reactor: fd entry has no owner")
	}
}

// EnableRead arms conn's read direction, dispatching to the UDP Connection
// Layer (§4.5) or to plain epoll MOD (§4.4) depending on conn.Kind. This
// is the single entry point session handlers use, so echo/proxy code
// doesn't need its own TCP/UDP branch.
func (r *Reactor) EnableRead(conn *core.Connection) error {
	if conn.Kind == core.ConnUDP {
		r.AddUDPReadEvent(conn.Read)
		return nil
	}
	return r.EnableEvent(conn.Read)
}

// DisableRead disarms conn's read direction.
func (r *Reactor) DisableRead(conn *core.Connection) error {
	if conn.Kind == core.ConnUDP {
		r.DelUDPReadEvent(conn.Read)
		return nil
	}
	return r.DisableEvent(conn.Read)
}

// EnableWrite arms conn's write direction.
func (r *Reactor) EnableWrite(conn *core.Connection) error {
	if conn.Kind == core.ConnUDP {
		return r.AddUDPWriteEvent(conn.UDPSocket, conn.Write)
	}
	return r.EnableEvent(conn.Write)
}

// DisableWrite disarms conn's write direction.
func (r *Reactor) DisableWrite(conn *core.Connection) error {
	if conn.Kind == core.ConnUDP {
		return r.DelUDPWriteEvent(conn.UDPSocket, conn.Write)
	}
	return r.DisableEvent(conn.Write)
}

// TeardownConn detaches conn from the reactor entirely — epoll removal for
// TCP, Peer Table + Write Queue removal for UDP — per del_conn (§4.4).
func (r *Reactor) TeardownConn(conn *core.Connection) error {
	if conn.Kind == core.ConnUDP {
		r.DelUDPConn(conn.UDPSocket, conn)
		return nil
	}
	return r.DelConn(conn)
}

// NextTimeoutMs computes the poll timeout for the next ProcessEvents
// call: the time until the soonest enabled timer expires, capped at
// maxMs and floored at zero, per §4.8's event-loop timeout formula.
//
// The heap orders strictly by expiry, not by enabled state, so a
// cancelled root can sit in front of an enabled timer that expires
// later but still sooner than maxMs. Per §4.1 a disabled slot is
// released as soon as it surfaces to the root, so this discards every
// disabled root it peeks before reading the expiry that actually
// governs the wait.
func (r *Reactor) NextTimeoutMs(now int64, maxMs int) int {
	if r.timers == nil {
		return maxMs
	}
	for {
		expiry, enabled, ok := r.timers.PeekRecord()
		if !ok {
			return maxMs
		}
		if !enabled {
			r.timers.Pop()
			continue
		}
		remaining := expiry - now
		if remaining <= 0 {
			return 0
		}
		if remaining > int64(maxMs) {
			return maxMs
		}
		return int(remaining)
	}
}

// ProcessTimers drains the root of the timer heap per §4.4: while the
// root is non-null, a disabled (cancelled) root is popped and discarded
// regardless of its expiry (§4.1's "a disabled slot is released when it
// surfaces to the root"); otherwise the loop stops as soon as the root's
// expiry is in the future.
func (r *Reactor) ProcessTimers(now int64) {
	if r.timers == nil {
		return
	}
	for {
		expiry, enabled, ok := r.timers.PeekRecord()
		if !ok {
			return
		}
		if !enabled {
			r.timers.Pop()
			continue
		}
		if expiry > now {
			return
		}
		id := r.timers.Peek()
		handler, data := r.timers.HandlerData(id)
		r.timers.Pop()
		if handler != nil {
			if r.metrics != nil {
				r.metrics.TimerExpired()
			}
			handler(data)
		}
	}
}
