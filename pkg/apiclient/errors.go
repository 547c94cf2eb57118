package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents an error response from the API. Problem documents
// fill Title and Detail; health envelopes fill Detail from their error field.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	title := e.Title
	if title == "" {
		title = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", title, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", title, e.StatusCode)
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnavailable returns true if the service reported itself unavailable.
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

func parseError(status int, body []byte) error {
	var doc struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(body, &doc) == nil {
		apiErr.Title = doc.Title
		apiErr.Detail = doc.Detail
		if apiErr.Detail == "" {
			apiErr.Detail = doc.Error
		}
	} else if len(body) > 0 {
		apiErr.Detail = string(body)
	}
	return apiErr
}
