package main

import (
	"fmt"
	"net"
)

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	parsed := net.ParseIP(s)
	if parsed == nil {
		return out, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("%q is not an IPv4 address", s)
	}
	copy(out[:], v4)
	return out, nil
}
