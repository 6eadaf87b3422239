// Package handlers provides the chi handlers of the gateway statements API and
// of the table store emulator.
package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/gateway"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/statement"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
	"github.com/yeoleshweta/PocketSaver/server/types"
)

// DefaultAsyncTimeout bounds statements submitted with async set.
const DefaultAsyncTimeout = 5 * time.Minute

// StatementsHandler serves /api/v1/statements.
type StatementsHandler struct {
	executor     gateway.Executor
	stmts        *statement.Manager
	adapter      string
	asyncTimeout time.Duration
	log          *logrus.Entry
}

// NewStatementsHandler creates a handler executing statements with executor.
// adapter is reported by the health check.
func NewStatementsHandler(executor gateway.Executor, stmts *statement.Manager, adapter string, log *logrus.Logger) *StatementsHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatementsHandler{
		executor:     executor,
		stmts:        stmts,
		adapter:      adapter,
		asyncTimeout: DefaultAsyncTimeout,
		log:          log.WithField("component", "statements"),
	}
}

// SetAsyncTimeout bounds how long an async statement may run. Non-positive values are ignored.
func (h *StatementsHandler) SetAsyncTimeout(d time.Duration) {
	if d > 0 {
		h.asyncTimeout = d
	}
}

// Routes mounts the handler on r.
func (h *StatementsHandler) Routes(r chi.Router) {
	r.Route("/api/v1/statements", func(r chi.Router) {
		r.Post("/", h.SubmitStatement)
		r.Get("/{handle}", h.GetStatement)
		r.Post("/{handle}/cancel", h.CancelStatement)
		r.Delete("/{handle}", h.DeleteStatement)
	})
	r.Get("/health", h.Health)
}

// SubmitStatement handles POST /api/v1/statements.
func (h *StatementsHandler) SubmitStatement(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitStatementRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		sendError(w, apierror.NewInvalidParameterError("body", "invalid JSON"))
		return
	}
	if req.Statement == "" {
		sendError(w, apierror.NewInvalidParameterError("statement", "statement is required"))
		return
	}

	params := make([]query.Value, len(req.Parameters))
	for i, p := range req.Parameters {
		params[i] = tablestore.DecodeValue(p)
	}
	stmt := h.stmts.Create(req.Statement, params)

	if req.Async {
		ctx, cancel := context.WithTimeout(context.Background(), h.asyncTimeout)
		h.stmts.Start(stmt.Handle, cancel)
		go func() {
			defer cancel()
			h.run(ctx, stmt)
		}()
		current, _ := h.stmts.Get(stmt.Handle)
		writeJSON(w, http.StatusAccepted, toResponse(current))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	h.stmts.Start(stmt.Handle, cancel)
	h.run(ctx, stmt)

	done, _ := h.stmts.Get(stmt.Handle)
	status := http.StatusOK
	if done.Err != nil {
		status = done.Err.HTTPStatus()
	}
	writeJSON(w, status, toResponse(done))
}

func (h *StatementsHandler) run(ctx context.Context, stmt statement.Statement) {
	rows, err := h.executor.Execute(ctx, stmt.Text, stmt.Params...)
	if !h.stmts.Finish(stmt.Handle, rows, err) {
		h.log.WithField("handle", stmt.Handle).Debug("statement finished after cancel")
	}
}

// GetStatement handles GET /api/v1/statements/{handle}.
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	stmt, ok := h.stmts.Get(handle)
	if !ok {
		sendError(w, apierror.NewNotFoundError("statement", handle))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(stmt))
}

// CancelStatement handles POST /api/v1/statements/{handle}/cancel.
func (h *StatementsHandler) CancelStatement(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if err := h.stmts.Cancel(handle); err != nil {
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CancelStatementResponse{
		Handle: handle,
		Status: string(statement.StatusCanceled),
	})
}

// DeleteStatement handles DELETE /api/v1/statements/{handle}. A statement
// still running is canceled first.
func (h *StatementsHandler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	stmt, ok := h.stmts.Get(handle)
	if !ok {
		sendError(w, apierror.NewNotFoundError("statement", handle))
		return
	}
	if !stmt.Status.Done() {
		_ = h.stmts.Cancel(handle)
	}
	h.stmts.Delete(handle)
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (h *StatementsHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok", Adapter: h.adapter})
}

func toResponse(stmt statement.Statement) types.StatementResponse {
	resp := types.StatementResponse{
		Handle:    stmt.Handle,
		Status:    string(stmt.Status),
		RowCount:  len(stmt.Rows),
		CreatedOn: stmt.CreatedOn.UnixMilli(),
	}
	if stmt.CompletedOn != nil {
		resp.CompletedOn = stmt.CompletedOn.UnixMilli()
	}
	if stmt.Status == statement.StatusSuccess {
		resp.Rows = make([]map[string]any, len(stmt.Rows))
		for i, row := range stmt.Rows {
			resp.Rows[i] = row
		}
	}
	if stmt.Err != nil {
		resp.Error = stmt.Err.ToResponse()
	}
	return resp
}

// decodeBody decodes a JSON body keeping numbers exact.
func decodeBody(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
