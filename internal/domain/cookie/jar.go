// Package cookie keeps a per-connection cookie session and reconciles it
// with the simulated HTTP headers of requests and responses.
package cookie

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// DefaultURI scopes cookies when no base URI is configured. Its value only
// matters as a stable jar key.
const DefaultURI = "http://example.com"

// Field is the canonical request header the consolidated cookie string is
// written to.
const Field = "cookie"

// SetCookieSeparator joins multiple set-cookie values in a flattened header.
const SetCookieSeparator = "\n"

// fields are the header names scanned for cookie state, in priority order.
var fields = []string{"set-cookie", "Set-Cookie", "Cookie", "cookie"}

// Jar is a cookie jar bound to one scoping URI. A nil *Jar is valid and
// ignores every call; connections with cookies disabled hold a nil Jar.
type Jar struct {
	jar    *cookiejar.Jar
	uri    *url.URL
	logger *slog.Logger

	// OnParseFailure, when set, is called once per header that held cookie
	// text but produced no parseable cookie.
	OnParseFailure func(field string)
}

// New creates a Jar scoped to baseURI.
func New(baseURI string, logger *slog.Logger) (*Jar, error) {
	if baseURI == "" {
		baseURI = DefaultURI
	}
	u, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie uri %q: %w", baseURI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cookie uri %q: scheme and host required", baseURI)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Jar{jar: jar, uri: u, logger: logger}, nil
}

// Update merges cookie state from the first cookie field in headers that
// yields at least one valid cookie. Malformed fields are skipped.
func (j *Jar) Update(headers protocol.Header) {
	if j == nil || headers == nil {
		return
	}

	for _, field := range fields {
		value, ok := headers[field]
		if !ok || value == "" {
			continue
		}

		var cookies []*http.Cookie
		if strings.EqualFold(field, "set-cookie") {
			cookies = parseSetCookies(value)
		} else {
			cookies = parseCookies(value)
		}

		if len(cookies) == 0 {
			j.logger.Debug("ignoring malformed cookie header", "field", field)
			if j.OnParseFailure != nil {
				j.OnParseFailure(field)
			}
			continue
		}

		j.jar.SetCookies(j.uri, cookies)
		return
	}
}

// Sync absorbs any cookie state in headers and then overwrites the outgoing
// cookie field with the jar's consolidated cookie string.
func (j *Jar) Sync(headers protocol.Header) {
	if j == nil || headers == nil {
		return
	}

	j.Update(headers)

	headers.Del(Field)
	if s := j.String(); s != "" {
		headers[Field] = s
	}
}

// String returns the consolidated "name=value; name=value" cookie string
// for the jar's scoping URI.
func (j *Jar) String() string {
	if j == nil {
		return ""
	}
	cookies := j.jar.Cookies(j.uri)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// URI returns the scoping URI.
func (j *Jar) URI() string {
	if j == nil {
		return ""
	}
	return j.uri.String()
}

// parseSetCookies parses one or more Set-Cookie lines, dropping invalid ones.
func parseSetCookies(value string) []*http.Cookie {
	var out []*http.Cookie
	for _, line := range strings.Split(value, SetCookieSeparator) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// parseCookies parses a request Cookie header ("a=b; c=d").
func parseCookies(value string) []*http.Cookie {
	cookies, err := http.ParseCookie(value)
	if err != nil {
		return nil
	}
	return cookies
}
