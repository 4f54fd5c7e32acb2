package inject

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

func TestEchoHandler(t *testing.T) {
	t.Parallel()

	inj := NewHandlerInjector(EchoHandler(), nil)
	res, err := inj.Inject(context.Background(), &protocol.Request{
		Method:  http.MethodPut,
		URL:     "/pets/7?set=sid%3Dxyz",
		Headers: protocol.Header{"cookie": "theme=dark", "x-trace": "t1"},
		Payload: json.RawMessage(`{"name":"rex"}`),
	})
	if err != nil {
		t.Fatalf("Inject() error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if got, _ := res.Headers.Get("set-cookie"); got != "sid=xyz; Path=/" {
		t.Errorf("set-cookie = %q, want %q", got, "sid=xyz; Path=/")
	}

	var reply EchoReply
	if err := json.Unmarshal(res.RawPayload, &reply); err != nil {
		t.Fatalf("reply %q is not JSON: %v", res.RawPayload, err)
	}
	if reply.Method != "PUT" || reply.Path != "/pets/7" {
		t.Errorf("method, path = %s %s, want PUT /pets/7", reply.Method, reply.Path)
	}
	if reply.Cookies["theme"] != "dark" {
		t.Errorf("cookies = %v, want theme=dark", reply.Cookies)
	}
	if reply.Headers["X-Trace"] != "t1" {
		t.Errorf("headers[X-Trace] = %q, want t1", reply.Headers["X-Trace"])
	}
	if string(reply.Body) != `{"name":"rex"}` {
		t.Errorf("body = %s, want {\"name\":\"rex\"}", reply.Body)
	}
}

func TestEchoHandler_TextBody(t *testing.T) {
	t.Parallel()

	inj := NewHandlerInjector(EchoHandler(), nil)
	res, err := inj.Inject(context.Background(), &protocol.Request{
		Method:  http.MethodPost,
		URL:     "/",
		Payload: json.RawMessage(`"plain words"`),
	})
	if err != nil {
		t.Fatalf("Inject() error: %v", err)
	}
	var reply EchoReply
	if err := json.Unmarshal(res.RawPayload, &reply); err != nil {
		t.Fatalf("reply %q is not JSON: %v", res.RawPayload, err)
	}
	if len(reply.Body) == 0 {
		t.Error("body missing from reply")
	}
	if len(reply.Query) != 0 {
		t.Errorf("query = %v, want empty", reply.Query)
	}
}
