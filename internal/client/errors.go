package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error response of the server
type APIError struct {
	Status        int               `json:"-"`
	Kind          string            `json:"error"`
	Message       string            `json:"message"`
	Fields        map[string]string `json:"fields,omitempty"`
	Expired       bool              `json:"expired,omitempty"`
	RequiresLogin bool              `json:"requiresLogin,omitempty"`
	RetryAfter    int               `json:"retryAfter,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, msg)
	}

	fields := make([]string, 0, len(e.Fields))
	for name, problem := range e.Fields {
		fields = append(fields, name+": "+problem)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, msg, strings.Join(fields, "; "))
}

// Session is gone, user has to login again
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		_ = json.Unmarshal(b, apiErr)
	}
	return apiErr
}
