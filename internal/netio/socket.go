// Package netio wraps the raw non-blocking socket syscalls the reactor
// needs, grounded on original_source's os/linux/listener.c, connection.c
// and udp_socket.c: bind/listen/accept/connect/recv/send/recvfrom/sendto,
// each fd switched to O_NONBLOCK the same way (fcntl F_GETFL, OR in
// O_NONBLOCK, fcntl F_SETFL), via golang.org/x/sys/unix rather than cgo.
package netio

import (
	"github.com/denbykov/jkreactor/internal/status"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenBacklog matches the original backend's LISTEN_QUEUE.
const listenBacklog = 10

// SetNonblocking ORs O_NONBLOCK into fd's flags.
func SetNonblocking(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return status.Wrap(status.Generic, err, "fcntl F_GETFL")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return status.Wrap(status.Generic, err, "fcntl F_SETFL O_NONBLOCK")
	}
	return nil
}

// Listen creates a non-blocking, SO_REUSEADDR TCP listener bound to
// 0.0.0.0:port.
func Listen(port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, status.Wrap(status.Generic, err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "setsockopt SO_REUSEADDR")
	}
	sa := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "bind")
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "listen")
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// ListenUDP creates a non-blocking, SO_REUSEADDR UDP socket bound to
// 0.0.0.0:port.
func ListenUDP(port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, status.Wrap(status.Generic, err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "setsockopt SO_REUSEADDR")
	}
	sa := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "bind")
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept drains one pending connection from a listener's fd. It reports
// ok=false (no error) when the listener is out of pending connections
// (EAGAIN/EWOULDBLOCK) — the caller's accept loop stops on that signal.
func Accept(listenFD int) (fd int, ok bool, err error) {
	nfd, _, acceptErr := unix.Accept(listenFD)
	if acceptErr != nil {
		if errors.Is(acceptErr, unix.EAGAIN) {
			return -1, false, nil
		}
		return -1, false, status.Wrap(status.Generic, acceptErr, "accept")
	}
	if setErr := SetNonblocking(nfd); setErr != nil {
		unix.Close(nfd)
		return -1, false, setErr
	}
	return nfd, true, nil
}

// Connect starts a non-blocking TCP connect, returning the new fd. The
// caller must watch for write-readiness and check SO_ERROR to learn
// whether the connect succeeded, per the half-duplex handshake in §4.4.
func Connect(sa unix.Sockaddr) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, status.Wrap(status.Generic, err, "socket")
	}
	if err := SetNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return -1, status.Wrap(status.Generic, err, "connect")
	}
	return fd, nil
}

// SocketError reads and clears SO_ERROR, the standard way to learn whether
// a non-blocking connect succeeded once its fd becomes writable.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return status.Wrap(status.Generic, err, "getsockopt SO_ERROR")
	}
	if errno != 0 {
		return status.Wrap(status.Generic, unix.Errno(errno), "connect")
	}
	return nil
}

// Recv reads into buf. ok=false with no error signals EAGAIN/EWOULDBLOCK;
// n==0 with ok=true and no error signals peer shutdown (EOF).
func Recv(fd int, buf []byte) (n int, ok bool, err error) {
	n, recvErr := unix.Read(fd, buf)
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, status.Wrap(status.Generic, recvErr, "read")
	}
	return n, true, nil
}

// Send writes buf. ok=false with no error signals EAGAIN/EWOULDBLOCK —
// the caller should retry once the fd is writable again.
func Send(fd int, buf []byte) (n int, ok bool, err error) {
	n, sendErr := unix.Write(fd, buf)
	if sendErr != nil {
		if errors.Is(sendErr, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, status.Wrap(status.Generic, sendErr, "write")
	}
	return n, true, nil
}

// RecvFrom reads one datagram and the peer address it arrived from.
func RecvFrom(fd int, buf []byte) (n int, from unix.Sockaddr, ok bool, err error) {
	n, from, recvErr := unix.Recvfrom(fd, buf, 0)
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) {
			return 0, nil, false, nil
		}
		return 0, nil, false, status.Wrap(status.Generic, recvErr, "recvfrom")
	}
	return n, from, true, nil
}

// SendTo writes one datagram to the given peer address.
func SendTo(fd int, buf []byte, to unix.Sockaddr) (ok bool, err error) {
	sendErr := unix.Sendto(fd, buf, 0, to)
	if sendErr != nil {
		if errors.Is(sendErr, unix.EAGAIN) {
			return false, nil
		}
		return false, status.Wrap(status.Generic, sendErr, "sendto")
	}
	return true, nil
}

// Close closes fd, ignoring EBADF (already closed).
func Close(fd int) error {
	if err := unix.Close(fd); err != nil && !errors.Is(err, unix.EBADF) {
		return status.Wrap(status.Generic, err, "close")
	}
	return nil
}
