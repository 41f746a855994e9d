package taskdesk

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// APIError is a failed REST response. StatusCode 0 means the server was
// unreachable (transport-level failure).
type APIError struct {
	StatusCode int
	URL        string
	Detail     string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("taskdesk: api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("taskdesk: api error %d on %s", e.StatusCode, e.URL)
}

// errorBody is the JSON error envelope the backend uses.
type errorBody struct {
	Detail string          `json:"detail"`
	Errors json.RawMessage `json:"errors"`
}

// ParseAPIError builds an APIError from a response body. A body that is not
// the expected envelope yields an APIError carrying only the status code.
func ParseAPIError(statusCode int, url string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, URL: url}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	apiErr.Detail = eb.Detail
	if len(eb.Errors) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(eb.Errors, &fields); err == nil {
			apiErr.Fields = make(map[string][]string, len(fields))
			for name, raw := range fields {
				var list []string
				if err := json.Unmarshal(raw, &list); err == nil {
					apiErr.Fields[name] = list
					continue
				}
				var single string
				if err := json.Unmarshal(raw, &single); err == nil {
					apiErr.Fields[name] = []string{single}
				}
			}
		}
	}
	return apiErr
}

// UserMessage derives the user-facing message for a failed response, in
// priority order: explicit detail, joined field validation messages, then a
// generic message keyed off the status code.
func (e *APIError) UserMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		var msgs []string
		for _, name := range names {
			msgs = append(msgs, e.Fields[name]...)
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, " ")
		}
	}
	switch {
	case e.StatusCode == 0:
		return "Unable to connect to the server"
	case e.StatusCode == 403:
		return "Access denied"
	case e.StatusCode == 404:
		return "Resource not found"
	case e.StatusCode >= 500:
		return "Server error. Please try again later."
	}
	return "An unexpected error occurred"
}

// AsAPIError unwraps err to an *APIError if one is in its chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuthEndpoint reports whether the URL targets the authentication
// endpoints. 401s from those are the caller's to handle: they must never
// trigger a refresh cycle or an error toast.
func IsAuthEndpoint(url string) bool {
	return strings.Contains(url, "/auth/")
}
