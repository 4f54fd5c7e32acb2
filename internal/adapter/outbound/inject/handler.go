package inject

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/port/outbound"
)

// DefaultHost is the host requests are addressed to when they carry no
// host header.
const DefaultHost = "localhost"

// HandlerInjector runs requests against an in-process http.Handler.
type HandlerInjector struct {
	handler http.Handler
	logger  *slog.Logger
}

// NewHandlerInjector creates an injector for handler.
func NewHandlerInjector(handler http.Handler, logger *slog.Logger) *HandlerInjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerInjector{
		handler: handler,
		logger:  logger.With("component", "handler_injector"),
	}
}

// Inject serves req with the wrapped handler and records its response.
// A handler panic is recovered and returned as an error.
func (i *HandlerInjector) Inject(ctx context.Context, req *protocol.Request) (res *protocol.RawResponse, err error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	host := DefaultHost
	if h, ok := req.Headers.Get("host"); ok && h != "" {
		host = h
	}
	target, err := resolve(&url.URL{Scheme: "http", Host: host}, req.URL)
	if err != nil {
		return nil, err
	}
	hr, err := buildRequest(ctx, req, target)
	if err != nil {
		return nil, err
	}
	hr.RequestURI = req.URL
	hr.RemoteAddr = "127.0.0.1:0"

	rec := newRecorder()
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				res, err = nil, fmt.Errorf("handler aborted %s %s", req.Method, req.URL)
				return
			}
			i.logger.Error("handler panicked", "method", req.Method, "url", req.URL, "panic", p)
			res, err = nil, fmt.Errorf("handler panic: %v", p)
		}
	}()

	i.handler.ServeHTTP(rec, hr)
	return readResponse(rec.status(), rec.header, &rec.body)
}

// recorder is a minimal http.ResponseWriter buffering one response.
type recorder struct {
	header      http.Header
	body        bytes.Buffer
	code        int
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.code = code
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

// Flush implements http.Flusher; the body is already buffered.
func (r *recorder) Flush() {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
}

func (r *recorder) status() int {
	if !r.wroteHeader {
		return http.StatusOK
	}
	return r.code
}

var (
	_ outbound.Injector = (*HandlerInjector)(nil)
	_ http.Flusher      = (*recorder)(nil)
)
