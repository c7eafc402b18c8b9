package netio

import "github.com/denbykov/jkreactor/internal/core"

// ConnRecv fills dst from conn, dispatching to a plain non-blocking recv
// loop for TCP or a scratch-buffer copy for UDP, per §4.5/§4.6's
// recv_buf/udp_recv_buf split. It drains until dst is full or the fd
// reports EAGAIN, matching the original recv_buf's "keep reading until
// EAGAIN or out of space" loop. peerClosed is true only when the very
// first read on this call observed EOF.
func ConnRecv(conn *core.Connection, dst []byte) (n int, peerClosed bool, err error) {
	if conn.Kind == core.ConnUDP {
		return UDPRecv(conn.UDPSocket, dst), false, nil
	}

	total := 0
	for total < len(dst) {
		m, ok, rerr := Recv(conn.FD, dst[total:])
		if rerr != nil {
			return total, false, rerr
		}
		if !ok {
			break
		}
		if m == 0 {
			if total == 0 {
				return 0, true, nil
			}
			break
		}
		total += m
	}
	return total, false, nil
}

// ConnSend writes src to conn, dispatching to a plain non-blocking send
// loop for TCP or a single sendto for UDP. A UDP send that would block
// returns status.WouldBlock via err, leaving sock.Writable cleared.
func ConnSend(conn *core.Connection, src []byte) (n int, err error) {
	if conn.Kind == core.ConnUDP {
		return UDPSend(conn.UDPSocket, conn, src)
	}

	total := 0
	for total < len(src) {
		m, ok, serr := Send(conn.FD, src[total:])
		if serr != nil {
			return total, serr
		}
		if !ok {
			break
		}
		if m == 0 {
			break
		}
		total += m
	}
	return total, nil
}
