// Package httputil holds small request and response helpers shared by the API and
// stream handlers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request came from, normalized so that one client
// always maps to one key (IPv4-mapped IPv6 is unmapped, zones are dropped).
//
// When trustProxy is true the leftmost parseable X-Forwarded-For entry, then
// X-Real-IP, win over RemoteAddr. Header values that are not addresses are
// ignored. Only enable trustProxy behind a trusted reverse proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := parseAddr(first); ok {
				return addr
			}
		}
		if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return addr
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if addr, ok := parseAddr(host); ok {
		return addr
	}
	return host
}

func parseAddr(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}
