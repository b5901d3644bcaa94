package billingsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIError is a non-2xx response from the billing API.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Code is a short machine-readable code when the server sent one.
	Code string

	// Message is the server-provided human readable message, empty when the
	// body carried none.
	Message string

	// Fields holds per-field validation errors (DRF serializer errors).
	Fields map[string][]string

	// Body is the raw (truncated) response body.
	Body []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.fieldSummary())
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) fieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return strings.Join(parts, "; ")
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode extracts the HTTP status from an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ServerMessage returns the message the server attached to err, or "" when
// err is not an *APIError or the body had none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// parseErrorResponse builds an *APIError from a response. It understands the
// body shapes the backend produces: {"message"}, {"detail"}, {"error"},
// {"code", ...} and serializer field errors {"field": ["msg", ...]}.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return apiErr
	}

	apiErr.Code = stringField(obj, "code")

	for _, key := range []string{"message", "detail", "error"} {
		if msg := stringField(obj, key); msg != "" {
			apiErr.Message = msg
			break
		}
	}

	for key, raw := range obj {
		var msgs []string
		if err := json.Unmarshal(raw, &msgs); err != nil || len(msgs) == 0 {
			continue
		}
		if apiErr.Fields == nil {
			apiErr.Fields = make(map[string][]string)
		}
		apiErr.Fields[key] = msgs
	}

	if apiErr.Message == "" {
		if msgs := apiErr.Fields["non_field_errors"]; len(msgs) > 0 {
			apiErr.Message = msgs[0]
		}
	}

	return apiErr
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
