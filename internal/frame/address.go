package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is an EUI-64 style link-layer address.
type Address uint64

const (
	Broadcast Address = 0xFFFFFFFFFFFFFFFF // everyone hears

	groupBit = 1 << 56 // LSB of the first octet
)

func (a Address) IsBroadcast() bool { return a == Broadcast }

// IsMulticast reports whether the group bit is set on a non-broadcast address.
func (a Address) IsMulticast() bool { return a != Broadcast && a&groupBit != 0 }

// IsGroup is true for broadcast and multicast destinations, which are never acknowledged.
func (a Address) IsGroup() bool { return a.IsBroadcast() || a.IsMulticast() }

// NeighborID is the key used by the link statistics.
func (a Address) NeighborID() uint64 { return uint64(a) }

func (a Address) String() string {
	var sb strings.Builder
	for i := 7; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", byte(a>>(8*i)))
		if i > 0 {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// ParseAddress accepts eight hex octets separated by '-' or ':'.
func ParseAddress(s string) (Address, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == ':' })
	if len(parts) != 8 {
		return 0, fmt.Errorf("address %q: expected 8 octets, got %d", s, len(parts))
	}
	var a Address
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("address %q: %w", s, err)
		}
		a = a<<8 | Address(v)
	}
	return a, nil
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
