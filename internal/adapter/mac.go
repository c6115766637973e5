package adapter

import "strings"

// MAC is a canonicalized Bluetooth hardware address, always upper-case
// XX:XX:XX:XX:XX:XX. The zero value is not a valid address.
type MAC string

// ParseMAC canonicalizes and validates s, returning ("", false) if s isn't a
// well-formed MAC address.
func ParseMAC(s string) (MAC, bool) {
	if len(s) != 17 {
		return "", false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", false
	}
	for _, part := range parts {
		if len(part) != 2 || !isHex(part[0]) || !isHex(part[1]) {
			return "", false
		}
	}
	return MAC(strings.ToUpper(s)), true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Valid reports whether mac is a well-formed canonical address.
func (m MAC) Valid() bool {
	_, ok := ParseMAC(string(m))
	return ok && MAC(strings.ToUpper(string(m))) == m
}

func (m MAC) String() string {
	return string(m)
}
