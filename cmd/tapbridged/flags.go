package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// argError marks a failure in the supplied CLI/config arguments, distinct
// from a runtime error once the bridge is running (spec.md §6 exit codes:
// non-zero on invalid arguments, 3 on unhandled runtime error).
type argError struct{ err error }

func (e argError) Error() string { return e.err.Error() }
func (e argError) Unwrap() error { return e.err }

func newArgError(format string, args ...interface{}) error {
	return argError{err: fmt.Errorf(format, args...)}
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, newArgError("mac-address: %q must have 6 colon-separated octets", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, newArgError("mac-address: %q is not a valid MAC address: %w", s, err)
		}
		mac[i] = byte(v)
	}
	return mac, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var addr [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return addr, newArgError("ip-address: %q is not a valid IP address", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return addr, newArgError("ip-address: %q is not an IPv4 address", s)
	}
	copy(addr[:], v4)
	return addr, nil
}

func formatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

func formatIPv4(addr [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])
}
