package session

import "github.com/denbykov/jkreactor/internal/core"

// NewUDPEchoSession builds the core.NewSessionFunc a UDPSocket calls the
// first time it sees a given peer address, per §4.5/§4.6. original_source
// only declares make_udp_connection (connection/connection.h) without ever
// defining it, so arming the read direction at construction time — so the
// datagram that just discovered this peer isn't itself dropped as
// "read disabled" — is this port's own completion of that gap, not a
// ported behavior.
func NewUDPEchoSession(deps EchoDeps) core.NewSessionFunc {
	handler := NewEchoHandler(deps)
	return func(sock *core.UDPSocket, remote core.Address) *core.Connection {
		conn := core.NewUDPConnection(sock, remote)
		conn.Read.Handler = handler
		conn.Write.Handler = handler
		conn.Read.Enabled = true
		return conn
	}
}
