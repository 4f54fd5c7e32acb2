package protocol

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Normalize converts a RawResponse into the reply shape sent to clients.
// A non-empty RawPayload is decoded as UTF-8 text and wins over Payload.
// String bodies that parse as JSON are replaced by the decoded value;
// anything else is delivered unchanged.
func Normalize(res *RawResponse) *Response {
	if res == nil {
		return &Response{StatusCode: http.StatusInternalServerError, Headers: Header{}}
	}

	var body any = res.Payload
	if len(res.RawPayload) > 0 {
		body = utf8Text(res.RawPayload)
	}

	if text, ok := body.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			body = parsed
		}
	}

	headers := res.Headers
	if headers == nil {
		headers = Header{}
	}
	return &Response{
		Body:       body,
		Headers:    headers,
		StatusCode: res.StatusCode,
	}
}

// utf8Text converts b to a string, replacing invalid sequences with U+FFFD.
func utf8Text(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// ErrorResponse synthesizes a JSON error reply in the conventional
// {statusCode, error, message} shape.
func ErrorResponse(status int, message string) *RawResponse {
	payload, _ := json.Marshal(map[string]any{
		"statusCode": status,
		"error":      http.StatusText(status),
		"message":    message,
	})
	return &RawResponse{
		StatusCode: status,
		Headers:    Header{"content-type": "application/json; charset=utf-8"},
		RawPayload: payload,
	}
}
