package inject

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/port/outbound"
)

// DefaultTimeout bounds one upstream round trip.
const DefaultTimeout = 30 * time.Second

// UpstreamInjector forwards requests to a remote HTTP base URL.
type UpstreamInjector struct {
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// UpstreamOption configures an UpstreamInjector.
type UpstreamOption func(*UpstreamInjector)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) UpstreamOption {
	return func(u *UpstreamInjector) {
		u.httpClient = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) UpstreamOption {
	return func(u *UpstreamInjector) {
		if u.httpClient != nil && d > 0 {
			u.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) UpstreamOption {
	return func(u *UpstreamInjector) {
		u.logger = logger
	}
}

// NewUpstreamInjector creates an injector for the upstream at baseURL.
func NewUpstreamInjector(baseURL string, opts ...UpstreamOption) (*UpstreamInjector, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: host required", baseURL)
	}

	u := &UpstreamInjector{
		base: base,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are returned to the socket client as-is.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "upstream_injector", "upstream", base.Redacted())
	return u, nil
}

// Inject sends req to the upstream. Transport failures are returned as
// errors; HTTP error statuses are returned as responses.
func (u *UpstreamInjector) Inject(ctx context.Context, req *protocol.Request) (*protocol.RawResponse, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	target, err := resolve(u.base, req.URL)
	if err != nil {
		return nil, err
	}
	hr, err := buildRequest(ctx, req, target)
	if err != nil {
		return nil, err
	}
	// The upstream is addressed by its own host.
	hr.Host = ""

	start := time.Now()
	resp, err := u.httpClient.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("upstream request %s %s failed: %w", req.Method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	u.logger.Debug("upstream responded", "method", req.Method, "url", req.URL, "status", resp.StatusCode, "elapsed", time.Since(start))
	return readResponse(resp.StatusCode, resp.Header, resp.Body)
}

// Base returns the upstream base URL.
func (u *UpstreamInjector) Base() string {
	return u.base.String()
}

var _ outbound.Injector = (*UpstreamInjector)(nil)
