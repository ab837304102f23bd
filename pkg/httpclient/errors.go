package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is a non-2xx answer from an upstream. Message holds the
// human-readable text the upstream put in its error payload, if any.
type StatusError struct {
	Upstream string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Upstream, e.Status, e.Message)
	}
	return fmt.Sprintf("%s returned status %d", e.Upstream, e.Status)
}

// IsClientError reports whether the upstream rejected the request itself.
func (e *StatusError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// ParseResponseError reads the body of a non-2xx response into a
// *StatusError. The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", upstream, resp.StatusCode, err)
	}

	return &StatusError{Upstream: upstream, Status: resp.StatusCode, Message: extractMessage(body)}
}

// extractMessage understands the error shapes seen across upstreams:
// {"error":"text"}, {"error":{"message":"text"}} and {"message":"text"}.
func extractMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}

	if len(payload.Error) > 0 {
		var text string
		if json.Unmarshal(payload.Error, &text) == nil && strings.TrimSpace(text) != "" {
			return text
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return payload.Message
}
