// Package hostinfo implements the Endpoint Registry (§4.1): a handful of
// pure functions over OS network state, grounded on the same
// net.InterfaceAddrs()/os.Hostname() introspection the teacher uses in
// internal/tls/selfsigned.go to populate a certificate's SAN list.
package hostinfo

import (
	"net"
	"os"
	"strings"
)

// HostName returns the canonical short host name, trimmed of any domain
// suffix (matching the common convention the teacher follows when logging
// "starting bunghole on ...").
func HostName() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

// HostIPs returns all non-loopback IPv4 addresses bound to local
// interfaces.
func HostIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		ips = append(ips, ip4.String())
	}
	return ips
}

// IsLocal reports whether ip names one of this host's own addresses.
func IsLocal(ip string) bool {
	for _, local := range HostIPs() {
		if local == ip {
			return true
		}
	}
	return ip == "127.0.0.1" || ip == "::1"
}

// ClosestHostIP returns, of the local host's addresses, the one sharing the
// longest address-prefix match with peerIP. Ties resolve to the first
// match in HostIPs() order. Returns "" if there are no local IPv4
// addresses or peerIP does not parse.
func ClosestHostIP(peerIP string) string {
	peer := net.ParseIP(peerIP).To4()
	if peer == nil {
		return ""
	}

	best := ""
	bestLen := -1
	for _, candidate := range HostIPs() {
		ip := net.ParseIP(candidate).To4()
		if ip == nil {
			continue
		}
		n := commonPrefixBits(ip, peer)
		if n > bestLen {
			bestLen = n
			best = candidate
		}
	}
	return best
}

// commonPrefixBits returns the number of leading bits shared by two IPv4
// addresses given as 4-byte slices.
func commonPrefixBits(a, b net.IP) int {
	bits := 0
	for i := 0; i < 4; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			bits += 8
			continue
		}
		for x&0x80 == 0 {
			bits++
			x <<= 1
		}
		break
	}
	return bits
}
