// Package statement tracks statements submitted over the gateway HTTP API so
// asynchronous submissions can be polled and canceled by handle.
package statement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Status is the lifecycle state of a statement.
type Status string

// Statement states.
const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Done reports whether s is a final state.
func (s Status) Done() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// Statement is a submitted statement and, once finished, its outcome.
type Statement struct {
	Handle      string
	Status      Status
	Text        string
	Params      []query.Value
	CreatedOn   time.Time
	CompletedOn *time.Time
	Rows        query.RowSet
	Err         *apierror.Error
	cancel      context.CancelFunc
}

// Manager holds statements until they have been finished for longer than the TTL.
type Manager struct {
	mu         sync.RWMutex
	statements map[string]*Statement
	ttl        time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewManager creates a manager and starts its cleanup loop. Call Close to stop it.
func NewManager(ttl time.Duration) *Manager {
	m := &Manager{
		statements: make(map[string]*Statement),
		ttl:        ttl,
		stop:       make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Close stops the cleanup loop.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Create registers a pending statement and returns a copy of it.
func (m *Manager) Create(text string, params []query.Value) Statement {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt := &Statement{
		Handle:    newHandle(),
		Status:    StatusPending,
		Text:      text,
		Params:    params,
		CreatedOn: time.Now(),
	}
	m.statements[stmt.Handle] = stmt
	return *stmt
}

// Get returns a copy of the statement with the given handle.
func (m *Manager) Get(handle string) (Statement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stmt, ok := m.statements[handle]
	if !ok {
		return Statement{}, false
	}
	return *stmt, true
}

// Start marks a statement running and records how to cancel it.
func (m *Manager) Start(handle string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt, ok := m.statements[handle]
	if !ok || stmt.Status != StatusPending {
		return false
	}
	stmt.Status = StatusRunning
	stmt.cancel = cancel
	return true
}

// Finish records the outcome of a statement. A canceled statement keeps its
// canceled state.
func (m *Manager) Finish(handle string, rows query.RowSet, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt, ok := m.statements[handle]
	if !ok || stmt.Status == StatusCanceled {
		return false
	}
	if err != nil {
		stmt.Status = StatusFailed
		stmt.Err = apierror.FromError(err)
	} else {
		stmt.Status = StatusSuccess
		stmt.Rows = rows
	}
	stmt.cancel = nil
	now := time.Now()
	stmt.CompletedOn = &now
	return true
}

// Cancel cancels a pending or running statement. Backend calls already sent
// are not undone.
func (m *Manager) Cancel(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt, ok := m.statements[handle]
	if !ok {
		return apierror.NewNotFoundError("statement", handle)
	}
	if stmt.Status.Done() {
		return apierror.NewInvalidParameterError("handle", fmt.Sprintf("statement is not running (status: %s)", stmt.Status))
	}

	if stmt.cancel != nil {
		stmt.cancel()
		stmt.cancel = nil
	}
	stmt.Status = StatusCanceled
	now := time.Now()
	stmt.CompletedOn = &now
	return nil
}

// Delete removes a statement.
func (m *Manager) Delete(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statements, handle)
}

func (m *Manager) cleanupLoop() {
	interval := m.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup(time.Now())
		}
	}
}

// cleanup removes statements finished more than ttl before now.
func (m *Manager) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for handle, stmt := range m.statements {
		if stmt.CompletedOn != nil && now.Sub(*stmt.CompletedOn) > m.ttl {
			delete(m.statements, handle)
		}
	}
}

func newHandle() string {
	return uuid.NewString()
}
