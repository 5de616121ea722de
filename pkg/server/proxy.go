package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxyMatcher reports whether a peer is a trusted reverse proxy.
type proxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func newProxyMatcher(entries []string, logger *slog.Logger) *proxyMatcher {
	m := &proxyMatcher{ips: make(map[string]struct{})}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case strings.Contains(entry, "/"):
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				continue
			}
			m.nets = append(m.nets, network)
		default:
			ip := net.ParseIP(entry)
			if ip == nil {
				logger.Warn("invalid trusted proxy IP", "entry", entry)
				continue
			}
			m.ips[ip.String()] = struct{}{}
		}
	}
	if len(m.ips) == 0 && len(m.nets) == 0 {
		return nil
	}
	return m
}

func (m *proxyMatcher) IsTrusted(ip net.IP) bool {
	if m == nil || ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the originating client address. Forwarded headers are
// only honored when the peer is a trusted proxy; the rightmost untrusted
// hop wins.
func (m *proxyMatcher) clientIP(r *http.Request) net.IP {
	remote := remoteIP(r)
	if remote == nil || !m.IsTrusted(remote) {
		return remote
	}
	hops := forwardedFor(r.Header.Get("X-Forwarded-For"))
	for i := len(hops) - 1; i >= 0; i-- {
		if !m.IsTrusted(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return remote
}

// secure reports whether r arrived over TLS, directly or through a trusted
// proxy that says so.
func (m *proxyMatcher) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if !m.IsTrusted(remoteIP(r)) {
		return false
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	switch strings.ToLower(strings.Trim(strings.TrimSpace(proto), `"`)) {
	case "https", "wss":
		return true
	default:
		return false
	}
}

func remoteIP(r *http.Request) net.IP {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	return net.ParseIP(host)
}

func forwardedFor(header string) []net.IP {
	var out []net.IP
	for _, part := range strings.Split(header, ",") {
		value := strings.Trim(strings.TrimSpace(part), `"`)
		if value == "" || strings.EqualFold(value, "unknown") {
			continue
		}
		if h, _, err := net.SplitHostPort(value); err == nil {
			value = h
		}
		if ip := net.ParseIP(strings.Trim(value, "[]")); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}
