package api

import "net"

// parseIP parses s, returning nil (rather than an error) on malformed
// input — callers treat an unparseable address as "leave unset".
func parseIP(s string) net.IP {
	return net.ParseIP(s)
}
