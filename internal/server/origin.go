// Package server normalizes and validates HTTP origins for WebSocket stream
// requests to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the compiled allow-list consulted on every websocket
// upgrade. The zero value denies everything.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// compileOriginPolicy normalizes the configured origins into a policy,
// returning it along with the normalized list for the active config to
// echo back. Invalid entries are logged and skipped; "*" allows all.
func compileOriginPolicy(origins []string) (originPolicy, []string) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	normalized := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		norm, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		if _, dup := policy.allowed[norm]; dup {
			continue
		}
		policy.allowed[norm] = struct{}{}
		normalized = append(normalized, norm)
	}

	return policy, normalized
}

func (p originPolicy) allows(origin string) bool {
	norm, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[norm]
	return ok
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin != "" && currentOriginPolicy().allows(origin) {
		return true
	}

	slog.Warn("blocked websocket connection from disallowed origin", "origin", origin)
	return false
}
