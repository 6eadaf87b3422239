package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/memstore"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
	"github.com/yeoleshweta/PocketSaver/server/types"
)

// Error codes the emulator reports for requests it cannot read.
const (
	codeBadRequest   = "PGRST100"
	codeUnauthorized = "PGRST301"
)

// errBadRequest marks malformed query parameters or bodies.
var errBadRequest = errors.New("malformed request")

// TableStoreHandler serves the table store API over a memstore.Store, so the
// remote adapter can run without a hosted project.
type TableStoreHandler struct {
	store  *memstore.Store
	apiKey string
	log    *logrus.Entry
}

// NewTableStoreHandler creates a handler over store. An empty apiKey disables
// the key check.
func NewTableStoreHandler(store *memstore.Store, apiKey string, log *logrus.Logger) *TableStoreHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TableStoreHandler{store: store, apiKey: apiKey, log: log.WithField("component", "tablestore-emulator")}
}

// Routes mounts the handler on r.
func (h *TableStoreHandler) Routes(r chi.Router) {
	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/{table}", h.Select)
		r.Post("/{table}", h.Insert)
		r.Patch("/{table}", h.Update)
		r.Delete("/{table}", h.Delete)
	})
}

func (h *TableStoreHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			key := r.Header.Get("apikey")
			if key == "" {
				key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if key != h.apiKey {
				writeJSON(w, http.StatusUnauthorized, types.TableStoreError{Code: codeUnauthorized, Message: "invalid API key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Select handles GET /rest/v1/{table}.
func (h *TableStoreHandler) Select(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	var rows query.RowSet
	err := h.store.Atomically(func(tx *memstore.Tx) error {
		def, err := tx.Definition(name)
		if err != nil {
			return err
		}
		q, columns, err := parseQuery(def, r.URL.Query())
		if err != nil {
			return err
		}
		rows, err = tx.Select(name, q)
		if err != nil {
			return err
		}
		if len(columns) > 0 {
			for i, row := range rows {
				rows[i] = row.Project(columns)
			}
		}
		return nil
	})
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Insert handles POST /rest/v1/{table}. The body is one row object or an array of them.
func (h *TableStoreHandler) Insert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	rows, err := readRows(r.Body)
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	stored, err := h.store.Insert(name, rows)
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	h.respondRows(w, r, http.StatusCreated, stored)
}

// Update handles PATCH /rest/v1/{table}.
func (h *TableStoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	values, err := readObject(r.Body)
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	var updated query.RowSet
	err = h.store.Atomically(func(tx *memstore.Tx) error {
		def, err := tx.Definition(name)
		if err != nil {
			return err
		}
		q, _, err := parseQuery(def, r.URL.Query())
		if err != nil {
			return err
		}
		updated, err = tx.Update(name, q, values)
		return err
	})
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	h.respondRows(w, r, http.StatusOK, updated)
}

// Delete handles DELETE /rest/v1/{table}.
func (h *TableStoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	var removed query.RowSet
	err := h.store.Atomically(func(tx *memstore.Tx) error {
		def, err := tx.Definition(name)
		if err != nil {
			return err
		}
		q, _, err := parseQuery(def, r.URL.Query())
		if err != nil {
			return err
		}
		removed, err = tx.Delete(name, q)
		return err
	})
	if err != nil {
		h.sendStoreError(w, err)
		return
	}
	h.respondRows(w, r, http.StatusOK, removed)
}

func (h *TableStoreHandler) respondRows(w http.ResponseWriter, r *http.Request, status int, rows query.RowSet) {
	if !strings.Contains(r.Header.Get("Prefer"), types.PreferRepresentation) {
		if status == http.StatusOK {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		return
	}
	if rows == nil {
		rows = query.RowSet{}
	}
	writeJSON(w, status, rows)
}

func (h *TableStoreHandler) sendStoreError(w http.ResponseWriter, err error) {
	status, body := storeError(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("table store request failed")
	}
	writeJSON(w, status, body)
}

// storeError maps a store failure to the status and error body a hosted table
// store would answer with.
func storeError(err error) (int, types.TableStoreError) {
	body := types.TableStoreError{Message: err.Error()}
	var gwErr *apierror.Error
	if errors.As(err, &gwErr) && gwErr.Cause != nil {
		body.Message = gwErr.Cause.Error()
	}

	switch {
	case errors.Is(err, apierror.ErrUniqueViolation):
		body.Code = tablestore.CodeUniqueViolation
		body.Message = "duplicate key value violates unique constraint"
		body.Details = err.Error()
		return http.StatusConflict, body
	case errors.Is(err, memstore.ErrUnknownTable):
		body.Code = tablestore.CodeUndefinedTable
		return http.StatusNotFound, body
	case errors.Is(err, memstore.ErrUnknownColumn):
		body.Code = tablestore.CodeUndefinedColumn
		return http.StatusBadRequest, body
	case errors.Is(err, memstore.ErrNotNull):
		body.Code = tablestore.CodeNotNullViolation
		return http.StatusBadRequest, body
	case errors.Is(err, memstore.ErrInvalidInput):
		body.Code = tablestore.CodeInvalidInput
		return http.StatusBadRequest, body
	case errors.Is(err, memstore.ErrNoConstraint):
		body.Code = tablestore.CodeNoConstraint
		return http.StatusBadRequest, body
	case errors.Is(err, errBadRequest):
		body.Code = codeBadRequest
		return http.StatusBadRequest, body
	}
	body.Code = "XX000"
	return http.StatusInternalServerError, body
}

// parseQuery reads filters, order, paging and the select list. Filter operands
// are coerced to the column's declared type.
func parseQuery(def *schema.Table, values url.Values) (memstore.Query, []string, error) {
	var (
		q       memstore.Query
		columns []string
	)
	for key, vals := range values {
		switch key {
		case "select":
			for _, c := range strings.Split(vals[0], ",") {
				c = strings.TrimSpace(c)
				if c == "*" || c == "" {
					columns = nil
					break
				}
				if !def.HasColumn(c) {
					return q, nil, fmt.Errorf("%w: %q", memstore.ErrUnknownColumn, c)
				}
				columns = append(columns, c)
			}
		case "order":
			order, err := parseOrder(def, vals[0])
			if err != nil {
				return q, nil, err
			}
			q.Order = order
		case "limit":
			n, err := parseCount(key, vals[0])
			if err != nil {
				return q, nil, err
			}
			q.Limit = &n
		case "offset":
			n, err := parseCount(key, vals[0])
			if err != nil {
				return q, nil, err
			}
			q.Offset = n
		default:
			col, ok := def.Column(key)
			if !ok {
				return q, nil, fmt.Errorf("%w: %q", memstore.ErrUnknownColumn, key)
			}
			for _, v := range vals {
				if err := addFilter(&q, col, v); err != nil {
					return q, nil, err
				}
			}
		}
	}
	return q, columns, nil
}

func addFilter(q *memstore.Query, col schema.Column, raw string) error {
	switch raw {
	case types.FilterIs + ".null":
		if q.Nulls == nil {
			q.Nulls = map[string]bool{}
		}
		q.Nulls[col.Name] = true
		return nil
	case types.FilterNotIs + ".null":
		if q.Nulls == nil {
			q.Nulls = map[string]bool{}
		}
		q.Nulls[col.Name] = false
		return nil
	}

	keyword, operand, ok := strings.Cut(raw, ".")
	if !ok {
		return fmt.Errorf("%w: filter %s=%s", errBadRequest, col.Name, raw)
	}
	var op query.Operator
	switch keyword {
	case types.FilterEq:
		op = query.OpEq
	case types.FilterGte:
		op = query.OpGte
	case types.FilterLte:
		op = query.OpLte
	case types.FilterGt:
		op = query.OpGt
	case types.FilterLt:
		op = query.OpLt
	default:
		return fmt.Errorf("%w: unknown operator %q", errBadRequest, keyword)
	}
	v, err := col.Coerce(operand)
	if err != nil {
		return err
	}
	q.Conditions = append(q.Conditions, query.Condition{Column: col.Name, Op: op, Value: v})
	return nil
}

func parseOrder(def *schema.Table, raw string) (*query.OrderBy, error) {
	column, dir, _ := strings.Cut(raw, ".")
	if !def.HasColumn(column) {
		return nil, fmt.Errorf("%w: %q", memstore.ErrUnknownColumn, column)
	}
	switch dir {
	case "", "asc":
		return &query.OrderBy{Column: column}, nil
	case "desc":
		return &query.OrderBy{Column: column, Descending: true}, nil
	}
	return nil, fmt.Errorf("%w: order direction %q", errBadRequest, dir)
}

func parseCount(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func readRows(body io.Reader) ([]query.Row, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	var raw any
	if err := decodeBody(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}

	var objects []any
	switch v := raw.(type) {
	case []any:
		objects = v
	case map[string]any:
		objects = []any{v}
	default:
		return nil, fmt.Errorf("%w: body must be an object or an array of objects", errBadRequest)
	}
	rows := make([]query.Row, len(objects))
	for i, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not an object", errBadRequest, i)
		}
		rows[i] = toRow(obj)
	}
	return rows, nil
}

func readObject(body io.Reader) (query.Row, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	var obj map[string]any
	if err := decodeBody(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", errBadRequest, err)
	}
	return toRow(obj), nil
}

func toRow(obj map[string]any) query.Row {
	row := make(query.Row, len(obj))
	for k, v := range obj {
		row[k] = tablestore.DecodeValue(v)
	}
	return row
}
