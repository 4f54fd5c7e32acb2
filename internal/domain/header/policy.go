// Package header enforces per-connection header policy: sticky headers are
// pinned to their handshake-time value on every request, strip headers are
// removed from every response.
package header

import (
	"strings"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// Policy holds the sticky and strip header lists of a connection.
type Policy struct {
	sticky []string
	strip  []string
}

// Values is a frozen snapshot of sticky header values. A name mapped to
// absent is removed from requests rather than written.
type Values map[string]value

type value struct {
	v       string
	present bool
}

// NewPolicy creates a Policy. Names are deduplicated case-insensitively;
// the first spelling and order are kept.
func NewPolicy(sticky, strip []string) *Policy {
	return &Policy{
		sticky: dedupe(sticky),
		strip:  dedupe(strip),
	}
}

// Sticky returns the sticky header names.
func (p *Policy) Sticky() []string {
	return append([]string(nil), p.sticky...)
}

// StripNames returns the strip header names.
func (p *Policy) StripNames() []string {
	return append([]string(nil), p.strip...)
}

// Capture snapshots the sticky header values from handshake headers.
func (p *Policy) Capture(handshake protocol.Header) Values {
	out := make(Values, len(p.sticky))
	for _, name := range p.sticky {
		v, ok := handshake.Get(name)
		out[name] = value{v: v, present: ok}
	}
	return out
}

// ApplySticky overwrites every sticky header in headers with its captured
// value, whatever the request carried.
func (p *Policy) ApplySticky(headers protocol.Header, values Values) {
	if headers == nil {
		return
	}
	for _, name := range p.sticky {
		headers.Del(name)
		if val := values[name]; val.present {
			headers[name] = val.v
		}
	}
}

// Strip removes every strip-listed header from headers.
func (p *Policy) Strip(headers protocol.Header) {
	if headers == nil {
		return
	}
	for _, name := range p.strip {
		headers.Del(name)
	}
}

// Get returns the captured value for name.
func (v Values) Get(name string) (string, bool) {
	for k, val := range v {
		if strings.EqualFold(k, name) {
			return val.v, val.present
		}
	}
	return "", false
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
