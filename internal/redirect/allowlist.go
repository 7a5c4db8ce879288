// Package redirect validates where a finished authorization may send the
// user back to.
package redirect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BlackMission/credlink/internal/domain"
)

// Allowlist holds permitted destination hosts. A pattern is either an
// exact host ("example.com") or a subdomain wildcard ("*.monday.com").
// An empty Allowlist accepts any absolute http(s) URL.
type Allowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewAllowlist builds an allowlist from host patterns. Ports are not
// part of the match.
func NewAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
			continue
		case strings.HasPrefix(p, "*."):
			if len(p) == 2 {
				return nil, fmt.Errorf("%w: bare wildcard host pattern", domain.ErrInvalidConfig)
			}
			a.suffixes = append(a.suffixes, p[1:])
		case strings.Contains(p, "*"):
			return nil, fmt.Errorf("%w: wildcard only allowed as leading label: %q", domain.ErrInvalidConfig, p)
		default:
			a.exact[p] = struct{}{}
		}
	}
	return a, nil
}

// Validate checks that raw is an absolute http(s) URL on an allowed host.
func (a *Allowlist) Validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: not an absolute URL", domain.ErrBackToNotAllowed)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: scheme %q", domain.ErrBackToNotAllowed, u.Scheme)
	}
	if a.empty() {
		return nil
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := a.exact[host]; ok {
		return nil
	}
	for _, suffix := range a.suffixes {
		if strings.HasSuffix(host, suffix) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", domain.ErrBackToNotAllowed, host)
}

func (a *Allowlist) empty() bool {
	return a == nil || (len(a.exact) == 0 && len(a.suffixes) == 0)
}
