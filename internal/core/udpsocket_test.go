package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUDPSocketDefaults(t *testing.T) {
	th := NewTimerHeap(16)
	newSession := func(sock *UDPSocket, remote Address) *Connection {
		return NewUDPConnection(sock, remote)
	}

	s := NewUDPSocket(7, th, newSession)

	require.Equal(t, 7, s.FD)
	require.True(t, s.Bound)
	require.True(t, s.NonBlocking)
	require.NotNil(t, s.Event)
	require.Equal(t, OwnerUDPSocket, s.Event.Owner)
	require.Equal(t, DirRead, s.Event.Dir)
	require.Same(t, s, s.Event.UDPSocket)
	require.NotNil(t, s.Peers)
	require.NotNil(t, s.WriteQueue)
	require.Same(t, th, s.Timer)
}

func TestUDPSocketNewSessionRegistersPeer(t *testing.T) {
	th := NewTimerHeap(16)
	var seen Address
	newSession := func(sock *UDPSocket, remote Address) *Connection {
		seen = remote
		return NewUDPConnection(sock, remote)
	}
	s := NewUDPSocket(7, th, newSession)

	addr := NewAddressFromTCP(net.ParseIP("127.0.0.1"), 9000)
	conn := s.NewSession(s, addr)

	require.Equal(t, addr, seen)
	require.Equal(t, ConnUDP, conn.Kind)
	require.Equal(t, addr, conn.RemoteAddr)
}
