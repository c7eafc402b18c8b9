package session

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/netio"
)

// NewTCPEchoOnAccept builds the callback reactor.AcceptLoop invokes per
// newly accepted fd in plain echo mode, grounded on
// session/tcp.c's handle_new_connection.
func NewTCPEchoOnAccept(deps EchoDeps) func(fd int) {
	handler := NewEchoHandler(deps)
	return func(fd int) {
		conn := core.NewTCPConnection(fd)
		conn.Read.Handler = handler
		conn.Write.Handler = handler
		if err := deps.Reactor.AddConn(conn, conn.Read); err != nil {
			deps.Log.Errorf("echo: accept: add_conn fd %d: %v", fd, err)
			_ = netio.Close(fd)
		}
	}
}

// NewTCPProxyOnAccept is NewTCPEchoOnAccept's proxy-mode counterpart.
func NewTCPProxyOnAccept(deps ProxyDeps) func(fd int) {
	handler := NewEchoProxyHandler(deps)
	return func(fd int) {
		conn := core.NewTCPConnection(fd)
		conn.Read.Handler = handler
		conn.Write.Handler = handler
		if err := deps.Reactor.AddConn(conn, conn.Read); err != nil {
			deps.Log.Errorf("echo_proxy: accept: add_conn fd %d: %v", fd, err)
			_ = netio.Close(fd)
		}
	}
}
