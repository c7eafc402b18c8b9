package netio

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/status"
)

// UDPRecv copies the most recently received datagram (already resident in
// sock.Scratch from the reactor's recvfrom) into dst, per §4.5's
// udp_recv_buf: no syscall happens here, it's a plain copy.
func UDPRecv(sock *core.UDPSocket, dst []byte) int {
	n := copy(dst, sock.Scratch[:sock.ScratchLen])
	return n
}

// UDPSend converts conn's remote address into a sockaddr and calls
// sendto, per §4.5's udp_send_buf. On EAGAIN it clears sock.Writable and
// returns status.WouldBlock so the write event stays enqueued for the
// next writability callback.
func UDPSend(sock *core.UDPSocket, conn *core.Connection, buf []byte) (int, error) {
	to := ToSockaddr(conn.RemoteAddr)
	ok, err := SendTo(sock.FD, buf, to)
	if err != nil {
		return 0, err
	}
	if !ok {
		sock.Writable = false
		return 0, status.New(status.WouldBlock, "udp send would block")
	}
	return len(buf), nil
}
