package netio

import (
	"github.com/denbykov/jkreactor/internal/core"
	"golang.org/x/sys/unix"
)

// ToSockaddr converts a core.Address into the unix.Sockaddr RecvFrom/
// SendTo/Connect need.
func ToSockaddr(a core.Address) unix.Sockaddr {
	ip := a.IP()
	if a.Family == core.FamilyV4 {
		sa := &unix.SockaddrInet4{Port: int(a.Port)}
		copy(sa.Addr[:], ip.To4())
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(a.Port)}
	copy(sa.Addr[:], ip.To16())
	return sa
}

// FromSockaddr converts a unix.Sockaddr (as returned by Accept/RecvFrom)
// into a core.Address.
func FromSockaddr(sa unix.Sockaddr) core.Address {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return core.NewAddressFromTCP(append([]byte(nil), s.Addr[:]...), uint16(s.Port))
	case *unix.SockaddrInet6:
		return core.NewAddressFromTCP(append([]byte(nil), s.Addr[:]...), uint16(s.Port))
	default:
		return core.Address{}
	}
}
