// Package types provides the request and response bodies of the gateway
// statements API and the table store API.
package types

import (
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// SubmitStatementRequest is the body of POST /api/v1/statements.
type SubmitStatementRequest struct {
	Statement string `json:"statement"`
	// Parameters bind $1..$n in order.
	Parameters []any `json:"parameters,omitempty"`
	// Async returns the handle immediately; poll GET /api/v1/statements/{handle}.
	Async bool `json:"async,omitempty"`
}

// StatementResponse describes a statement and, when finished, its result.
type StatementResponse struct {
	Handle      string                  `json:"handle"`
	Status      string                  `json:"status"`
	Rows        []map[string]any        `json:"rows,omitempty"`
	RowCount    int                     `json:"rowCount"`
	CreatedOn   int64                   `json:"createdOn"`
	CompletedOn int64                   `json:"completedOn,omitempty"`
	Error       *apierror.ErrorResponse `json:"error,omitempty"`
}

// CancelStatementResponse is the body returned by a successful cancel.
type CancelStatementResponse struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Adapter string `json:"adapter,omitempty"`
}
