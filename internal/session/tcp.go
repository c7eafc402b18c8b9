package session

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/reactor"
)

// Connect opens a non-blocking outbound TCP connection to addr and
// registers it with the reactor with no armed direction, per §4.4's
// add_conn contract for TCP — the caller arms whichever direction it
// wants once it has attached session state and handlers.
func Connect(r *reactor.Reactor, addr core.Address) (*core.Connection, error) {
	fd, err := netio.Connect(netio.ToSockaddr(addr))
	if err != nil {
		return nil, err
	}

	conn := core.NewTCPConnection(fd)
	conn.RemoteAddr = addr

	if err := r.AddConn(conn, nil); err != nil {
		netio.Close(fd)
		return nil, err
	}
	return conn, nil
}
