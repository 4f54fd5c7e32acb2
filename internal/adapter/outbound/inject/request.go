// Package inject provides outbound.Injector implementations that run
// normalized socket requests against an HTTP core: an in-process
// http.Handler or a remote upstream.
package inject

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/socketgate/socketgate/internal/domain/cookie"
	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// maxResponseBodySize bounds how much of a response body is buffered.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// ErrNilRequest is returned when Inject is called without a request.
var ErrNilRequest = errors.New("nil request")

// buildRequest converts req into an *http.Request addressed to target. The
// payload becomes the body; application/json is assumed when the request
// carries a payload but no content type.
func buildRequest(ctx context.Context, req *protocol.Request, target *url.URL) (*http.Request, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	var body io.Reader = http.NoBody
	if len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", req.Method, req.URL, err)
	}

	for _, name := range headerNames(req.Headers) {
		value := req.Headers[name]
		switch strings.ToLower(name) {
		case "host":
			hr.Host = value
		case "content-length", "connection", "upgrade", "transfer-encoding":
		default:
			hr.Header.Set(name, value)
		}
	}
	if len(req.Payload) > 0 && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	return hr, nil
}

// headerNames returns the keys of h in sorted order, dropping any key whose
// lower-cased form is also present. Gateway-set headers use lower-case
// keys, so they win over client-sent variants of the same name.
func headerNames(h protocol.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		if lower := strings.ToLower(name); lower != name {
			if _, ok := h[lower]; ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve joins the request path and query of rawURL onto base.
func resolve(base *url.URL, rawURL string) (*url.URL, error) {
	ref, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", rawURL, err)
	}
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + ref.Path
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

// flattenHeaders converts a multi-valued http.Header into lower-cased,
// single-valued protocol headers. set-cookie values are joined with the
// cookie jar's separator; everything else with ", ".
func flattenHeaders(h http.Header) protocol.Header {
	out := make(protocol.Header, len(h))
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := h[name]
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(name)
		sep := ", "
		if key == "set-cookie" {
			sep = cookie.SetCookieSeparator
		}
		out[key] = strings.Join(values, sep)
	}
	return out
}

// readResponse builds a RawResponse from a status, headers and body.
func readResponse(status int, header http.Header, body io.Reader) (*protocol.RawResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &protocol.RawResponse{
		StatusCode: status,
		Headers:    flattenHeaders(header),
		RawPayload: raw,
	}, nil
}
