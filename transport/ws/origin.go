package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a WebSocket.
// "*" allows every origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			policy.allowed[normalized] = struct{}{}
		}
	}
	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check accepts requests without Origin: only browsers send it,
// and browsers always do on a WebSocket handshake.
func (p originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, exists := p.allowed[normalized]
	return exists
}
