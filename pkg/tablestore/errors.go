package tablestore

import (
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// SQLSTATE codes the table store reports.
const (
	CodeUniqueViolation  = "23505"
	CodeNotNullViolation = "23502"
	CodeUndefinedTable   = "42P01"
	CodeUndefinedColumn  = "42703"
	CodeInvalidInput     = "22P02"
	CodeNoConstraint     = "42P10"
)

// APIError is an error response of the table store.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "table store returned %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&sb, " [%s]", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Details != "" {
		sb.WriteString(" (" + e.Details + ")")
	}
	return sb.String()
}

// IsUniqueViolation reports whether the store rejected a write for a duplicate key.
func (e *APIError) IsUniqueViolation() bool {
	return e.Status == http.StatusConflict && e.Code == CodeUniqueViolation
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr = &APIError{Message: strings.TrimSpace(string(body))}
	}
	apiErr.Status = status
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
