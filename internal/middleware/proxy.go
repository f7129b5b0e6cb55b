package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures Echo to trust reverse proxy headers
// (X-Forwarded-For, X-Real-IP) from specific IP ranges. Without it
// c.RealIP() returns the proxy's address, which breaks the per-IP
// login rate limit.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor returns an Echo IPExtractor that honors forwarding
// headers only when the direct connection originates in a trusted CIDR.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Invalid CIDRs are skipped; this runs once at startup.
			continue
		}
		trusted = append(trusted, network)
	}

	return func(req *http.Request) string {
		directIP := extractDirectIP(req.RemoteAddr)

		if !isTrusted(directIP, trusted) {
			return directIP
		}

		if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}

		// X-Forwarded-For is comma-separated; the leftmost entry is the
		// original client when every hop is a trusted proxy.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.SplitN(xff, ",", 2)
			if len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}

		return directIP
	}
}

// extractDirectIP strips the port from a "host:port" RemoteAddr string.
func extractDirectIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// isTrusted reports whether the IP falls within any trusted CIDR.
func isTrusted(ipStr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
