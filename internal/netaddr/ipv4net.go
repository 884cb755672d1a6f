// Package netaddr implements IPv4 CIDR arithmetic: parsing, formatting,
// and the subnet-scanning primitives the network orchestrator needs
// (successor, network/broadcast detection, mask derivation). It has no
// dependency on net.IPNet because the orchestrator needs bit-level
// successor semantics that wrap within a subnet, which net.IPNet does not
// give you directly.
package netaddr

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4Net is an IPv4 address paired with a CIDR prefix length, stored as
// a big-endian uint32 host order so arithmetic on the host part is plain
// integer math.
type IPv4Net struct {
	Address uint32
	CIDR    uint8
}

// ParseIPv4Net parses "A.B.C.D/N". Both halves are mandatory.
func ParseIPv4Net(s string) (IPv4Net, error) {
	idx := strings.IndexByte(s, '/')
	if idx <= 0 || idx == len(s)-1 {
		return IPv4Net{}, fmt.Errorf("netaddr: malformed CIDR %q: missing address or prefix", s)
	}

	addr, err := parseIPv4(s[:idx])
	if err != nil {
		return IPv4Net{}, fmt.Errorf("netaddr: malformed CIDR %q: %w", s, err)
	}

	cidr, err := strconv.Atoi(s[idx+1:])
	if err != nil || cidr < 0 || cidr > 32 {
		return IPv4Net{}, fmt.Errorf("netaddr: malformed CIDR %q: prefix must be 0..32", s)
	}

	return IPv4Net{Address: addr, CIDR: uint8(cidr)}, nil
}

// MustParseIPv4Net is ParseIPv4Net for compile-time-known literals (default
// bridge/subnet constants).
func MustParseIPv4Net(s string) IPv4Net {
	n, err := ParseIPv4Net(s)
	if err != nil {
		panic(err)
	}
	return n
}

func parseIPv4(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("expected 4 octets, got %d", len(parts))
	}

	var addr uint32
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return 0, fmt.Errorf("invalid octet %q", p)
		}
		addr = addr<<8 | uint32(v)
	}
	return addr, nil
}

// SubnetMask returns the high-bits mask for the net's CIDR prefix.
func (n IPv4Net) SubnetMask() uint32 {
	if n.CIDR == 0 {
		return 0
	}
	return ^uint32(0) << (32 - n.CIDR)
}

// SubnetSizeExponent returns 32-cidr, used only as an upper bound on
// iteration counts when scanning a subnet for a free address.
func (n IPv4Net) SubnetSizeExponent() uint8 {
	return 32 - n.CIDR
}

// NetworkAddress returns this net's network bits with a zero host part.
func (n IPv4Net) NetworkAddress() uint32 {
	return n.Address & n.SubnetMask()
}

// BroadcastAddress returns this net's network bits with an all-ones host part.
func (n IPv4Net) BroadcastAddress() uint32 {
	return n.Address | ^n.SubnetMask()
}

// IsNetwork reports whether Address is the subnet's network address.
func (n IPv4Net) IsNetwork() bool {
	return n.Address == n.NetworkAddress()
}

// IsBroadcast reports whether Address is the subnet's broadcast address.
func (n IPv4Net) IsBroadcast() bool {
	return n.Address == n.BroadcastAddress()
}

// Next returns the net with the host part incremented by one, wrapping
// back to the network address immediately after the broadcast address.
func (n IPv4Net) Next() IPv4Net {
	mask := n.SubnetMask()
	network := n.Address & mask
	host := n.Address &^ mask

	maxHost := ^mask
	if host >= maxHost {
		host = 0
	} else {
		host++
	}

	return IPv4Net{Address: network | host, CIDR: n.CIDR}
}

// IP returns the dotted-quad rendering of the address, without the prefix.
func (n IPv4Net) IP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(n.Address>>24), byte(n.Address>>16), byte(n.Address>>8), byte(n.Address))
}

// String renders "A.B.C.D/N".
func (n IPv4Net) String() string {
	return fmt.Sprintf("%s/%d", n.IP(), n.CIDR)
}

// Equal reports structural equality.
func (n IPv4Net) Equal(other IPv4Net) bool {
	return n.Address == other.Address && n.CIDR == other.CIDR
}
