// Package memstore provides a process-local relational store and the
// in-memory gateway adapter built on it.
package memstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Store errors. They are wrapped into the returned apierror values.
var (
	ErrUnknownTable  = errors.New("relation does not exist")
	ErrUnknownColumn = schema.ErrUnknownColumn
	ErrInvalidInput  = schema.ErrInvalidInput
	ErrNotNull       = errors.New("null value violates not-null constraint")
	ErrNoConstraint  = schema.ErrNoConstraint
)

// Query selects rows of one table.
type Query struct {
	Conditions []query.Condition
	// Nulls filters on IS NULL (true) / IS NOT NULL (false).
	Nulls  map[string]bool
	Order  *query.OrderBy
	Limit  *int64
	Offset int64
}

type table struct {
	def  *schema.Table
	rows []query.Row
	// issued holds every id ever generated, so deleted ids are never reused.
	issued map[string]struct{}
}

// Store holds the tables. Each call to Atomically, and each convenience
// method, has exclusive access to the whole store.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	now    func() time.Time
}

// NewStore creates an empty store with the given table declarations.
func NewStore(defs []*schema.Table) *Store {
	s := &Store{
		tables: make(map[string]*table, len(defs)),
		now:    time.Now,
	}
	for _, def := range defs {
		s.tables[def.Name] = &table{def: def, issued: make(map[string]struct{})}
	}
	return s
}

// Tx is exclusive access to a Store for the duration of Atomically.
type Tx struct {
	s *Store
}

// Atomically runs fn with exclusive access to the store.
func (s *Store) Atomically(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// Tables returns the names of the declared tables.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// Insert inserts rows into a table. See Tx.Insert.
func (s *Store) Insert(name string, rows []query.Row) (query.RowSet, error) {
	var out query.RowSet
	err := s.Atomically(func(tx *Tx) error {
		var err error
		out, err = tx.Insert(name, rows)
		return err
	})
	return out, err
}

// Select returns matching rows. See Tx.Select.
func (s *Store) Select(name string, q Query) (query.RowSet, error) {
	var out query.RowSet
	err := s.Atomically(func(tx *Tx) error {
		var err error
		out, err = tx.Select(name, q)
		return err
	})
	return out, err
}

// Update updates matching rows. See Tx.Update.
func (s *Store) Update(name string, q Query, values query.Row) (query.RowSet, error) {
	var out query.RowSet
	err := s.Atomically(func(tx *Tx) error {
		var err error
		out, err = tx.Update(name, q, values)
		return err
	})
	return out, err
}

// Delete deletes matching rows. See Tx.Delete.
func (s *Store) Delete(name string, q Query) (query.RowSet, error) {
	var out query.RowSet
	err := s.Atomically(func(tx *Tx) error {
		var err error
		out, err = tx.Delete(name, q)
		return err
	})
	return out, err
}

// Definition returns the declaration of a table.
func (tx *Tx) Definition(name string) (*schema.Table, error) {
	t, err := tx.table(name, "select")
	if err != nil {
		return nil, err
	}
	return t.def, nil
}

func (tx *Tx) table(name, op string) (*table, error) {
	t, ok := tx.s.tables[name]
	if !ok {
		return nil, apierror.NewBackendCallError(name, op, fmt.Errorf("%w: %q", ErrUnknownTable, name))
	}
	return t, nil
}

// Insert applies column defaults, validates and stores rows. Either every row
// is stored or none is. The stored rows are returned.
func (tx *Tx) Insert(name string, rows []query.Row) (query.RowSet, error) {
	t, err := tx.table(name, "insert")
	if err != nil {
		return nil, err
	}

	now := tx.s.now()
	pending := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		coerced, err := t.def.CoerceRow(row)
		if err != nil {
			return nil, t.inputError("insert", err)
		}
		full := t.def.ApplyDefaults(coerced, now, t.newID)
		if col := t.def.MissingRequired(full); col != "" {
			return nil, apierror.NewBackendCallError(name, "insert", fmt.Errorf("%w: column %q", ErrNotNull, col))
		}
		if key := t.conflicting(full, -1, pending); key != nil {
			return nil, apierror.NewUniqueViolationError(name, key, nil)
		}
		pending = append(pending, full)
	}

	t.rows = append(t.rows, pending...)
	return cloneRows(pending), nil
}

// Select returns copies of the rows matching q.
func (tx *Tx) Select(name string, q Query) (query.RowSet, error) {
	t, err := tx.table(name, "select")
	if err != nil {
		return nil, err
	}
	if err := t.checkColumns("select", q); err != nil {
		return nil, err
	}

	idx := t.match(q)
	out := make(query.RowSet, len(idx))
	for i, j := range idx {
		out[i] = t.rows[j].Clone()
	}
	query.SortRows(out, q.Order)
	return query.Paginate(out, q.Limit, q.Offset), nil
}

// Update writes values into every row matching q and returns the updated rows.
// Empty values leave rows unchanged but still return them.
func (tx *Tx) Update(name string, q Query, values query.Row) (query.RowSet, error) {
	t, err := tx.table(name, "update")
	if err != nil {
		return nil, err
	}
	if err := t.checkColumns("update", q); err != nil {
		return nil, err
	}
	coerced, err := t.def.CoerceRow(values)
	if err != nil {
		return nil, t.inputError("update", err)
	}

	idx := t.match(q)
	updated := make([]query.Row, len(idx))
	for i, j := range idx {
		row := t.rows[j].Clone()
		for k, v := range coerced {
			row[k] = v
		}
		if col := t.def.MissingRequired(row); col != "" {
			return nil, apierror.NewBackendCallError(name, "update", fmt.Errorf("%w: column %q", ErrNotNull, col))
		}
		updated[i] = row
	}
	for i, j := range idx {
		if key := t.conflictingUpdate(updated[i], j, idx, updated); key != nil {
			verr := apierror.NewUniqueViolationError(name, key, nil)
			verr.Operation = "update"
			return nil, verr
		}
	}

	for i, j := range idx {
		t.rows[j] = updated[i]
	}
	out := cloneRows(updated)
	query.SortRows(out, q.Order)
	return out, nil
}

// Delete removes the rows matching q and returns them. Rows of other tables
// referencing a deleted row are deleted too.
func (tx *Tx) Delete(name string, q Query) (query.RowSet, error) {
	t, err := tx.table(name, "delete")
	if err != nil {
		return nil, err
	}
	if err := t.checkColumns("delete", q); err != nil {
		return nil, err
	}

	idx := t.match(q)
	if len(idx) == 0 {
		return query.RowSet{}, nil
	}
	removed := make(query.RowSet, 0, len(idx))
	kept := make([]query.Row, 0, len(t.rows)-len(idx))
	next := 0
	for j, row := range t.rows {
		if next < len(idx) && idx[next] == j {
			removed = append(removed, row)
			next++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept

	tx.cascade(t.def, removed)
	return removed, nil
}

func (tx *Tx) cascade(parent *schema.Table, removed query.RowSet) {
	for _, child := range tx.s.tables {
		ref := child.def.Reference
		if ref == nil || ref.Table != parent.Name {
			continue
		}
		for _, row := range removed {
			q := Query{Conditions: []query.Condition{{Column: ref.Column, Op: query.OpEq, Value: row[ref.RefColumn]}}}
			// child is a declared table, so Delete cannot fail
			_, _ = tx.Delete(child.def.Name, q)
		}
	}
}

func (t *table) newID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, used := t.issued[id]; !used {
			t.issued[id] = struct{}{}
			return id
		}
	}
}

func (t *table) inputError(op string, err error) error {
	return apierror.NewBackendCallError(t.def.Name, op, err)
}

func (t *table) checkColumns(op string, q Query) error {
	check := func(col string) error {
		if !t.def.HasColumn(col) {
			return apierror.NewBackendCallError(t.def.Name, op, fmt.Errorf("%w: %q", ErrUnknownColumn, col))
		}
		return nil
	}
	for _, c := range q.Conditions {
		if err := check(c.Column); err != nil {
			return err
		}
	}
	for col := range q.Nulls {
		if err := check(col); err != nil {
			return err
		}
	}
	if q.Order != nil {
		return check(q.Order.Column)
	}
	return nil
}

func (t *table) match(q Query) []int {
	var idx []int
	for j, row := range t.rows {
		if !query.MatchAll(row, q.Conditions) {
			continue
		}
		nullsOK := true
		for col, wantNull := range q.Nulls {
			if query.IsNull(row[col]) != wantNull {
				nullsOK = false
				break
			}
		}
		if nullsOK {
			idx = append(idx, j)
		}
	}
	return idx
}

// conflicting returns the unique key that row would violate against the stored
// rows (skipping index self) and pending rows, or nil.
func (t *table) conflicting(row query.Row, self int, pending []query.Row) []string {
	for _, key := range t.def.UniqueKeys() {
		for j, other := range t.rows {
			if j != self && sameKey(row, other, key) {
				return key
			}
		}
		for _, other := range pending {
			if sameKey(row, other, key) {
				return key
			}
		}
	}
	return nil
}

// conflictingUpdate checks an updated row against unchanged rows and the
// other updated rows.
func (t *table) conflictingUpdate(row query.Row, self int, idx []int, updated []query.Row) []string {
	changing := make(map[int]bool, len(idx))
	for _, j := range idx {
		changing[j] = true
	}
	for _, key := range t.def.UniqueKeys() {
		for j, other := range t.rows {
			if !changing[j] && sameKey(row, other, key) {
				return key
			}
		}
		for i, other := range updated {
			if idx[i] != self && sameKey(row, other, key) {
				return key
			}
		}
	}
	return nil
}

// sameKey reports whether a and b agree on every key column. NULLs are distinct.
func sameKey(a, b query.Row, key []string) bool {
	for _, col := range key {
		if !query.Equal(a[col], b[col]) {
			return false
		}
	}
	return true
}

func cloneRows(rows []query.Row) query.RowSet {
	out := make(query.RowSet, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
