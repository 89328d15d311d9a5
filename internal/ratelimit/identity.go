package ratelimit

import (
	"net/http"
	"strings"
)

// LocalIdentity is used when a request carries no client address header.
// Every such caller shares one window; this is a trust boundary for
// deployments behind a proxy, not a security control.
const LocalIdentity = "localhost"

// Identity derives the limiter key from proxy headers: the first
// X-Forwarded-For entry, then X-Real-IP, else LocalIdentity.
func Identity(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return LocalIdentity
}
