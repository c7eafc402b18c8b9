package reactor

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/status"
)

// udpRecvBatch bounds how many datagrams handle_reads drains in one pass
// before yielding back to process_events, so one very chatty socket can't
// starve every other fd's readiness.
const udpRecvBatch = 256

// bindUDPHandler wires up sock's readiness handler; reactor.go's AddUDPSock
// calls it after doing the epoll_ctl half of the registration.
func (r *Reactor) bindUDPHandler(s *core.UDPSocket) {
	s.Event.Handler = func(ev *core.Event) {
		r.udpEvHandler(s)
	}
}

// udpEvHandler is the socket-level dispatch from §4.5: "if readable, call
// handle_reads; if writable, call handle_writes. Both flags may be set in
// the same invocation."
func (r *Reactor) udpEvHandler(s *core.UDPSocket) {
	r.log.Invariant(s.Readable || s.Writable, "udp socket event with neither readable nor writable set")

	if s.Readable {
		r.handleReads(s)
	}
	if s.Writable {
		r.handleWrites(s)
	}
}

// handleReads reads datagrams, dispatching each to its peer's Connection
// (creating one on first sight), per §4.5. It stops at EAGAIN or after
// udpRecvBatch recvfrom attempts (failed ones included), whichever comes
// first; datagrams still queued after a full batch are not read until the
// socket's next readiness notification.
func (r *Reactor) handleReads(s *core.UDPSocket) {
	for i := 0; i < udpRecvBatch; i++ {
		n, from, ok, err := netio.RecvFrom(s.FD, s.Scratch[:])
		if err != nil {
			r.log.Warnf("udp handle_reads: recvfrom: %v", err)
			continue
		}
		if !ok {
			return
		}

		s.ScratchLen = n
		addr := netio.FromSockaddr(from)

		conn, found := s.Peers.Lookup(addr)
		if !found {
			conn = s.NewSession(s, addr)
			if err := s.Peers.Insert(addr, conn); err != nil {
				r.log.Errorf("udp handle_reads: peer table insert for %s: %v", addr, err)
				continue
			}
		}

		if conn.Read.Enabled {
			r.log.Invariant(conn.Read.Handler != nil, "udp connection read event has no handler")
			conn.Read.Handler(conn.Read)
		} else {
			r.log.Warnf("udp handle_reads: dropping datagram from %s, read disabled", addr)
		}
	}
}

// handleWrites drains the Write Queue in round-robin order until it is
// empty or the socket stops being writable, per §4.5.
func (r *Reactor) handleWrites(s *core.UDPSocket) {
	for {
		if !s.Writable || s.WriteQueue.Len() == 0 {
			return
		}
		ev := s.WriteQueue.PopFront()
		if ev == nil {
			return
		}
		r.log.Invariant(ev.Handler != nil, "udp write queue event has no handler")
		ev.Handler(ev)
	}
}

// AddUDPReadEvent implements add_event(read) for a UDP connection: it only
// flips Enabled, since readiness delivery is driven entirely by the
// socket's single epoll registration.
func (r *Reactor) AddUDPReadEvent(ev *core.Event) {
	ev.Enabled = true
}

// DelUDPReadEvent implements del_event(read) for a UDP connection.
func (r *Reactor) DelUDPReadEvent(ev *core.Event) {
	ev.Enabled = false
}

// AddUDPWriteEvent implements add_event(write) for a UDP connection:
// enqueue in the socket's Write Queue, and if the socket is already
// writable, immediately pump handle_writes so the send isn't delayed
// until the next readiness notification.
func (r *Reactor) AddUDPWriteEvent(s *core.UDPSocket, ev *core.Event) error {
	if err := s.WriteQueue.Add(ev); err != nil {
		if r.metrics != nil && status.Is(err, status.OutOfBuffer) {
			r.metrics.WriteQueueDropped()
		}
		return err
	}
	ev.Enabled = true
	if s.Writable {
		r.handleWrites(s)
	}
	return nil
}

// DelUDPWriteEvent implements del_event(write) for a UDP connection.
func (r *Reactor) DelUDPWriteEvent(s *core.UDPSocket, ev *core.Event) error {
	if err := s.WriteQueue.Remove(ev); err != nil {
		return err
	}
	ev.Enabled = false
	return nil
}

// DelUDPConn removes conn from its socket's Peer Table and Write Queue,
// disabling both of its events, per §4.4's del_conn contract for UDP.
func (r *Reactor) DelUDPConn(s *core.UDPSocket, conn *core.Connection) {
	s.Peers.Delete(conn.RemoteAddr)
	if conn.Write.Enabled {
		_ = s.WriteQueue.Remove(conn.Write)
	}
	conn.Read.Enabled = false
	conn.Write.Enabled = false
}
