// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
	corsMaxAge       = "600"
)

// corsPolicy matches request origins against glob patterns. Patterns use '.'
// as the separator, so "https://*.mealmind.app" matches one subdomain level
// and "https://**.mealmind.app" matches any depth. A lone "*" allows every
// origin.
type corsPolicy struct {
	any      bool
	patterns []glob.Glob
}

func newCORSPolicy(origins []string) (*corsPolicy, error) {
	p := &corsPolicy{}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			p.any = true
			continue
		}
		g, err := glob.Compile(strings.ToLower(origin), '.')
		if err != nil {
			return nil, oops.Code("CORS_INVALID_ORIGIN").With("origin", origin).Wrap(err)
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

func (p *corsPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	origin = strings.ToLower(origin)
	for _, g := range p.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

// handler answers preflight requests and decorates responses to allowed
// origins. Requests from other origins pass through without CORS headers.
func (p *corsPolicy) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		allowed := p.allows(origin)
		if allowed {
			if p.any {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
