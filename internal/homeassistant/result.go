package homeassistant

import (
	"net/http"
	"strings"
)

// Result is the normalized outcome of one API request.
type Result struct {
	// StatusCode is the HTTP status, or 500 when the request never produced a
	// usable response.
	StatusCode int

	// Body is the decoded JSON payload. An empty response decodes to an empty
	// map; a failed request carries {"error": "<description>"}.
	Body any

	// Raw is the undecoded response payload, when one was received.
	Raw []byte

	// Err describes a transport or decode failure.
	Err error
}

func failure(err error, raw []byte) *Result {
	return &Result{
		StatusCode: http.StatusInternalServerError,
		Body:       map[string]any{"error": err.Error()},
		Raw:        raw,
		Err:        err,
	}
}

// OK reports whether the hub accepted the request.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil && r.StatusCode == http.StatusOK
}

// Message returns the hub's "message" field, or fallback when there is none.
func (r *Result) Message(fallback string) string {
	if r == nil {
		return fallback
	}
	if obj, ok := r.Body.(map[string]any); ok {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fallback
}

// Detail renders the response as a single line for error replies.
func (r *Result) Detail() string {
	if r == nil {
		return "no response"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	if raw := strings.Join(strings.Fields(string(r.Raw)), " "); raw != "" {
		return raw
	}
	if text := http.StatusText(r.StatusCode); text != "" {
		return text
	}
	return "unexpected response"
}
