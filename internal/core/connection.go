package core

// ConnKind tags which of the two Connection shapes described in §3 this
// is: a plain TCP fd, or a logical peer multiplexed over a shared UDP
// socket.
type ConnKind uint8

const (
	ConnTCP ConnKind = iota
	ConnUDP
)

// Connection is the tagged handle over either a TCP fd or a (UDP socket,
// remote address) pair, per §3/§4. It owns its two Events; a session
// handler owns the opaque Data pointer the spec calls the session
// pointer.
type Connection struct {
	Kind ConnKind

	// FD is the TCP file descriptor for ConnTCP connections. It is unused
	// (left at -1) for ConnUDP connections, which instead route through
	// UDPSocket below.
	FD int

	// UDPSocket and RemoteAddr are populated for ConnUDP connections: the
	// shared socket this logical peer multiplexes over, and the peer
	// address that identifies it in that socket's Peer Table.
	UDPSocket *UDPSocket

	// RemoteAddr is also filled in for outbound TCP connections (the
	// proxy's remote side), even though such connections are ConnTCP —
	// this lets AddConn know what address to connect(2) to.
	RemoteAddr Address

	Read  *Event
	Write *Event

	// Err mirrors the owner's error flag from §3: set when the OS
	// reported EPOLLERR/EPOLLHUP, read via SO_ERROR.
	Err     bool
	lastErr error

	// Data is the opaque session pointer handlers attach their own state
	// to (the session package's *echoState or *proxyState).
	Data any
}

// NewTCPConnection wraps an accepted or newly-connected TCP fd. Both
// Events are created disabled; the caller arms the one it wants first.
func NewTCPConnection(fd int) *Connection {
	c := &Connection{Kind: ConnTCP, FD: fd}
	c.Read = NewEvent(OwnerConnection, DirRead)
	c.Write = NewEvent(OwnerConnection, DirWrite)
	c.Read.Conn = c
	c.Write.Conn = c
	return c
}

// NewUDPConnection wraps a logical peer on a UDP socket.
func NewUDPConnection(sock *UDPSocket, remote Address) *Connection {
	c := &Connection{Kind: ConnUDP, FD: -1, UDPSocket: sock, RemoteAddr: remote}
	c.Read = NewEvent(OwnerConnection, DirRead)
	c.Write = NewEvent(OwnerConnection, DirWrite)
	c.Read.Conn = c
	c.Write.Conn = c
	return c
}

// SetError records that the OS reported an error/hangup condition on
// this connection's fd, along with the SO_ERROR value read for it.
func (c *Connection) SetError(err error) {
	c.Err = true
	c.lastErr = err
}

// LastError returns the last error recorded via SetError.
func (c *Connection) LastError() error { return c.lastErr }
