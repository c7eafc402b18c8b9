// Package core holds the reactor's foundational data types: addresses,
// events, connections, listeners and the timer heap — the pieces every
// other package (netio, reactor, session) builds on.
package core

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Family distinguishes IPv4 from IPv6 addresses, per §3.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// Address is the (family, port, ip) tuple used as the Peer Table key.
// It is a plain comparable struct (fixed-size IP array, no slice) so it
// can be used directly as a Go map/htab key with value semantics —
// exactly the "no extraneous padding" requirement in §3, since there is
// no pointer indirection or slice header to accidentally fold into
// equality or hashing.
type Address struct {
	Family Family
	Port   uint16
	ip     [16]byte // only the first 4 bytes are meaningful for FamilyV4
}

// NewAddressFromUDP builds an Address from a *net.UDPAddr, as returned by
// recvfrom on a UDP socket.
func NewAddressFromUDP(a *net.UDPAddr) Address {
	return newAddress(a.IP, uint16(a.Port))
}

// NewAddressFromTCP builds an Address from host/port, used for outbound
// TCP connects (proxy mode's remote side).
func NewAddressFromTCP(ip net.IP, port uint16) Address {
	return newAddress(ip, port)
}

func newAddress(ip net.IP, port uint16) Address {
	var addr Address
	addr.Port = port
	if v4 := ip.To4(); v4 != nil {
		addr.Family = FamilyV4
		copy(addr.ip[:4], v4)
	} else {
		addr.Family = FamilyV6
		v6 := ip.To16()
		copy(addr.ip[:16], v6)
	}
	return addr
}

// IP returns the address's IP bytes (4 or 16, matching Family).
func (a Address) IP() net.IP {
	if a.Family == FamilyV4 {
		ip := make(net.IP, 4)
		copy(ip, a.ip[:4])
		return ip
	}
	ip := make(net.IP, 16)
	copy(ip, a.ip[:16])
	return ip
}

// ipLen returns how many of a.ip's bytes participate in equality/hashing.
func (a Address) ipLen() int {
	if a.Family == FamilyV4 {
		return 4
	}
	return 16
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP().String(), a.Port)
}

// ToUDPAddr converts back to a *net.UDPAddr for use with net.PacketConn.
func (a Address) ToUDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP(), Port: int(a.Port)}
}

// fnvOffset64/fnvPrime64 are the 64-bit FNV-1a constants.
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// HashAddress is the FNV-1a hash specified in §3: over (family, port
// little-endian, ip-bytes), with exactly ipLen() IP bytes participating
// (4 for v4, 16 for v6) — no padding from the fixed [16]byte backing
// array leaks into the hash for v4 addresses.
func HashAddress(a Address) uint64 {
	h := uint64(fnvOffset64)
	h = fnvStep(h, byte(a.Family))

	var portBuf [2]byte
	binary.LittleEndian.PutUint16(portBuf[:], a.Port)
	h = fnvStep(h, portBuf[0])
	h = fnvStep(h, portBuf[1])

	n := a.ipLen()
	for i := 0; i < n; i++ {
		h = fnvStep(h, a.ip[i])
	}
	return h
}

func fnvStep(h uint64, b byte) uint64 {
	h ^= uint64(b)
	h *= fnvPrime64
	return h
}
