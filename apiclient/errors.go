package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/tidwall/gjson"
)

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Status  int             // HTTP status code
	Method  string          // Request method
	Path    string          // Request path relative to the base URL
	Payload json.RawMessage // Raw response body, usually a JSON error document
}

func (e *HTTPError) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Unwrap maps the status onto the package-wide error categories so callers
// can use errors.Is without inspecting codes.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.ErrValidation
	case http.StatusUnauthorized:
		return errs.ErrNotAuthenticated
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrConflict
	}
	return nil
}

// Message extracts the server's human-readable message. It looks at detail,
// then message, then error, then the first field error of a validation
// document such as {"email": ["already registered"]}.
func (e *HTTPError) Message() string {
	if len(e.Payload) == 0 || !gjson.ValidBytes(e.Payload) {
		return strings.TrimSpace(string(e.Payload))
	}
	for _, key := range []string{"detail", "message", "error", "error_description"} {
		if v := gjson.GetBytes(e.Payload, key); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}

	var first string
	gjson.ParseBytes(e.Payload).ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			if item := value.Get("0"); item.Type == gjson.String {
				first = item.String()
				return false
			}
		}
		return true
	})
	return first
}

// Field returns a string value from the error payload, empty if absent.
func (e *HTTPError) Field(path string) string {
	if len(e.Payload) == 0 {
		return ""
	}
	return gjson.GetBytes(e.Payload, path).String()
}

// MessageOf returns the best user-facing message for err, or fallback.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errs.As(err, &he) {
		if msg := he.Message(); msg != "" {
			return msg
		}
		return fallback
	}
	var ve *errs.ValidationError
	if errs.As(err, &ve) {
		return ve.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errs.As(err, &he) {
		return he.Status
	}
	return 0
}

// credentialsNotProvided recognises the 401 body a guest receives from an
// endpoint that tolerates anonymous callers.
func credentialsNotProvided(he *HTTPError) bool {
	msg := strings.ToLower(he.Message())
	return strings.Contains(msg, "credentials were not provided") ||
		strings.Contains(msg, "no credentials")
}
