package inject

import (
	"encoding/json"
	"io"
	"net/http"
)

// echoLimit caps the request body the echo application reads.
const echoLimit = 1 << 20

// EchoReply is the body the echo application answers with.
type EchoReply struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// EchoHandler returns the built-in application served in dev mode when no
// upstream is configured. It answers every request with a description of
// what it received. A "set" query parameter of the form name=value is
// returned as a Set-Cookie header so cookie round trips can be tried
// without a real application.
func EchoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := EchoReply{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: make(map[string]string, len(r.Header)),
		}
		if q := r.URL.Query(); len(q) > 0 {
			reply.Query = make(map[string]string, len(q))
			for k := range q {
				reply.Query[k] = q.Get(k)
			}
		}
		for k := range r.Header {
			reply.Headers[http.CanonicalHeaderKey(k)] = r.Header.Get(k)
		}
		if cookies := r.Cookies(); len(cookies) > 0 {
			reply.Cookies = make(map[string]string, len(cookies))
			for _, c := range cookies {
				reply.Cookies[c.Name] = c.Value
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, echoLimit))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > 0 {
			if json.Valid(body) {
				reply.Body = body
			} else {
				quoted, _ := json.Marshal(string(body))
				reply.Body = quoted
			}
		}

		if set := r.URL.Query().Get("set"); set != "" {
			w.Header().Add("Set-Cookie", set+"; Path=/")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	})
}
