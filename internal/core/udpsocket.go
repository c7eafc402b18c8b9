package core

import "github.com/denbykov/jkreactor/internal/htab"

// UDPMsgSize is the scratch receive buffer size, per §3: datagrams larger
// than this are truncated.
const UDPMsgSize = 512

// defaultWriteQueueCapacity is a power of two, large enough that a single
// UDP socket can have this many distinct peers with an outstanding write
// without hitting OutOfBuffer under ordinary load.
const defaultWriteQueueCapacity = 1024

// NewSessionFunc is supplied by main.go (the UDP echo session, in both
// echo and proxy mode) and invoked
// once per newly observed remote address to build a fresh Connection and
// attach its session handlers.
type NewSessionFunc func(sock *UDPSocket, remote Address) *Connection

// UDPSocket is the bound datagram endpoint described in §3/§4.5: one fd,
// one readiness Event (edge-triggered, both directions armed together),
// a Peer Table of logical connections keyed by remote address, and a
// companion Write Queue.
type UDPSocket struct {
	FD int

	Event *Event

	Bound       bool
	Readable    bool
	Writable    bool
	Error       bool
	NonBlocking bool

	Scratch    [UDPMsgSize]byte
	ScratchLen int // bytes valid in Scratch since the last recvfrom

	Peers      *htab.Table[Address, *Connection]
	WriteQueue *WriteQueue

	// Timer is the process-wide timer heap, shared by reference per §5.
	Timer *TimerHeap

	// NewSession builds a Connection (with handlers attached) for a
	// remote address seen for the first time in handle_reads.
	NewSession NewSessionFunc
}

// NewUDPSocket wraps an already-bound, non-blocking UDP fd.
func NewUDPSocket(fd int, timer *TimerHeap, newSession NewSessionFunc) *UDPSocket {
	s := &UDPSocket{
		FD:          fd,
		Bound:       true,
		NonBlocking: true,
		Peers:       htab.New[Address, *Connection](HashAddress, 128),
		WriteQueue:  NewWriteQueue(defaultWriteQueueCapacity),
		Timer:       timer,
		NewSession:  newSession,
	}
	s.Event = NewEvent(OwnerUDPSocket, DirRead)
	s.Event.UDPSocket = s
	return s
}
