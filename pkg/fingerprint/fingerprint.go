// Package fingerprint derives a stable device identifier from an HTTP
// request. Sessions store it at login so revocation lists and session echoes
// can tell devices apart without tracking cookies.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Generate combines User-Agent, Accept headers, and the client IP into a
// 32-character hex identifier. It is a heuristic device label, not an
// authentication factor.
func Generate(r *http.Request) string {
	components := []string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Accept"),
		clientIP(r),
	}

	var filtered []string
	for _, c := range components {
		if c != "" {
			filtered = append(filtered, c)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return hex.EncodeToString(hash[:16])
}

// Matches reports whether the request would produce the stored fingerprint.
func Matches(r *http.Request, stored string) bool {
	return Generate(r) == stored
}

// clientIP resolves the originating address, preferring proxy headers over
// the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(ip); parsed != "" {
				return parsed
			}
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
