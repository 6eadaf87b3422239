// Package apierror defines the gateway error taxonomy shared by every adapter and
// the HTTP surfaces.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind string

// Error kinds.
const (
	KindUnrecognizedStatement Kind = "UnrecognizedStatementKind"
	KindTableNameNotFound     Kind = "TableNameNotFound"
	KindClauseParse           Kind = "ClauseParseError"
	KindUniqueViolation       Kind = "UniqueConstraintViolation"
	KindBackendCall           Kind = "BackendCallError"
	KindNativeDriver          Kind = "NativeDriverError"
	KindInvalidParameter      Kind = "InvalidParameter"
	KindNotFound              Kind = "NotFound"
	KindInternal              Kind = "InternalError"
)

// Gateway error codes.
const (
	// Statement errors (001xxx)
	CodeUnrecognizedStatement = "001001"
	CodeTableNameNotFound     = "001002"
	CodeClauseParse           = "001003"

	// Constraint errors (002xxx)
	CodeUniqueViolation = "002043"

	// Backend errors (003xxx)
	CodeBackendCall  = "003001"
	CodeNativeDriver = "003002"

	// System errors (000xxx)
	CodeInternalError    = "000001"
	CodeInvalidParameter = "000002"
	CodeNotFound         = "000004"
)

// SQLState represents SQL standard error states.
const (
	SQLStateSuccess          = "00000"
	SQLStateSyntaxError      = "42601"
	SQLStateUniqueViolation  = "23505"
	SQLStateConnectionFailed = "08006"
	SQLStateSystemError      = "58000"
	SQLStateNoData           = "02000"
	SQLStateGeneralError     = "HY000"
)

var kindCodes = map[Kind]string{
	KindUnrecognizedStatement: CodeUnrecognizedStatement,
	KindTableNameNotFound:     CodeTableNameNotFound,
	KindClauseParse:           CodeClauseParse,
	KindUniqueViolation:       CodeUniqueViolation,
	KindBackendCall:           CodeBackendCall,
	KindNativeDriver:          CodeNativeDriver,
	KindInvalidParameter:      CodeInvalidParameter,
	KindNotFound:              CodeNotFound,
	KindInternal:              CodeInternalError,
}

// GetSQLState returns the SQL state for a given error code
func GetSQLState(code string) string {
	mapping := map[string]string{
		CodeUnrecognizedStatement: SQLStateSyntaxError,
		CodeTableNameNotFound:     SQLStateSyntaxError,
		CodeClauseParse:           SQLStateSyntaxError,
		CodeUniqueViolation:       SQLStateUniqueViolation,
		CodeBackendCall:           SQLStateConnectionFailed,
		CodeNativeDriver:          SQLStateSystemError,
		CodeNotFound:              SQLStateNoData,
	}

	if state, ok := mapping[code]; ok {
		return state
	}
	return SQLStateGeneralError
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrUnrecognizedStatement = &Error{Kind: KindUnrecognizedStatement}
	ErrTableNameNotFound     = &Error{Kind: KindTableNameNotFound}
	ErrClauseParse           = &Error{Kind: KindClauseParse}
	ErrUniqueViolation       = &Error{Kind: KindUniqueViolation}
	ErrBackendCall           = &Error{Kind: KindBackendCall}
	ErrNativeDriver          = &Error{Kind: KindNativeDriver}
)

// Error is a classified gateway failure.
type Error struct {
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	SQLState  string `json:"sqlState,omitempty"`
	Statement string `json:"statement,omitempty"`
	Table     string `json:"table,omitempty"`
	Operation string `json:"operation,omitempty"`
	Cause     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Table != "" && e.Operation != "" {
		msg = fmt.Sprintf("[%s] %s %s: %s", e.Code, e.Operation, e.Table, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches another error by kind.
func (e *Error) Is(target error) bool {
	var gwErr *Error
	if errors.As(target, &gwErr) {
		return e.Kind == gwErr.Kind
	}
	return false
}

// WithStatement records the statement text the error was raised for.
func (e *Error) WithStatement(text string) *Error {
	e.Statement = text
	return e
}

// IsStatementError reports whether err means the statement text is outside the
// supported dialect.
func IsStatementError(err error) bool {
	return errors.Is(err, ErrUnrecognizedStatement) ||
		errors.Is(err, ErrTableNameNotFound) ||
		errors.Is(err, ErrClauseParse)
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	code, ok := kindCodes[kind]
	if !ok {
		code = CodeInternalError
	}
	return &Error{
		Kind:     kind,
		Code:     code,
		Message:  message,
		SQLState: GetSQLState(code),
	}
}

// NewUnrecognizedStatementError reports a statement with no supported leading keyword.
func NewUnrecognizedStatementError(text string) *Error {
	return New(KindUnrecognizedStatement, "unrecognized statement kind").WithStatement(text)
}

// NewTableNameNotFoundError reports a recognized statement without its table clause.
func NewTableNameNotFoundError(kind, text string) *Error {
	return New(KindTableNameNotFound, fmt.Sprintf("table name not found in %s statement", kind)).WithStatement(text)
}

// NewClauseParseError reports a clause outside the supported dialect.
func NewClauseParseError(format string, args ...any) *Error {
	return New(KindClauseParse, fmt.Sprintf(format, args...))
}

// NewUniqueViolationError reports a duplicate value for a unique key.
func NewUniqueViolationError(table string, columns []string, cause error) *Error {
	msg := "duplicate key value violates unique constraint"
	if len(columns) > 0 {
		msg += fmt.Sprintf(" on %v", columns)
	}
	e := New(KindUniqueViolation, msg)
	e.Table = table
	e.Operation = "insert"
	e.Cause = cause
	return e
}

// NewBackendCallError wraps a failed remote call.
func NewBackendCallError(table, operation string, cause error) *Error {
	e := New(KindBackendCall, "backend call failed")
	e.Table = table
	e.Operation = operation
	e.Cause = cause
	return e
}

// NewNativeDriverError wraps a relational driver failure.
func NewNativeDriverError(cause error) *Error {
	e := New(KindNativeDriver, "native driver error")
	e.Cause = cause
	return e
}

// NewInvalidParameterError creates an invalid parameter error.
func NewInvalidParameterError(paramName, reason string) *Error {
	return New(KindInvalidParameter, fmt.Sprintf("Invalid parameter '%s': %s", paramName, reason))
}

// NewNotFoundError creates an object not found error.
func NewNotFoundError(objectType, objectName string) *Error {
	return New(KindNotFound, fmt.Sprintf("Object not found: %s '%s'", objectType, objectName))
}

// FromError converts a standard error to an *Error.
// If the error is already classified, it returns it as-is.
// If the error is nil, it returns nil.
// Otherwise, it wraps it as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	e := New(KindInternal, err.Error())
	e.Cause = err
	return e
}

// HTTPStatus maps an error kind to the HTTP status used by the API surfaces.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnrecognizedStatement, KindTableNameNotFound, KindClauseParse, KindInvalidParameter:
		return http.StatusBadRequest
	case KindUniqueViolation:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindBackendCall, KindNativeDriver:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents the JSON response structure for errors.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	SQLState  string `json:"sqlState,omitempty"`
	Table     string `json:"table,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// ToResponse converts the Error to an ErrorResponse.
func (e *Error) ToResponse() *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Kind:      e.Kind,
		Message:   e.Error(),
		Code:      e.Code,
		SQLState:  e.SQLState,
		Table:     e.Table,
		Operation: e.Operation,
	}
}

// MarshalJSON implements custom JSON marshaling.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	var cause string
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return json.Marshal(&struct {
		*Alias
		Cause string `json:"cause,omitempty"`
	}{
		Alias: (*Alias)(e),
		Cause: cause,
	})
}
