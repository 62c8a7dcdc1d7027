// Package session runs corrections for interactive clients where only the
// most recent request of a session matters. Submitting a new request cancels
// the one still in flight for the same session, and its caller gets
// ErrSuperseded instead of a stale result.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/lcqe/pkg/result"
)

var (
	ErrSuperseded = errors.New("request superseded by a newer one")
	ErrNotFound   = errors.New("session not found")
	ErrNoResult   = errors.New("session has no result yet")
)

// Run computes one result. It must return promptly once ctx is done.
type Run func(ctx context.Context) (*result.Set, error)

// Info describes a session.
type Info struct {
	ID        string    `json:"id"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	Runs      int       `json:"runs"`
	Running   bool      `json:"running"`
	HasResult bool      `json:"hasResult"`
	LastError string    `json:"lastError,omitempty"`
}

type entry struct {
	id      string
	created time.Time
	updated time.Time
	runs    int

	gen       uint64
	requestID string
	cancel    context.CancelFunc

	latest  *result.Set
	lastErr string
}

func (e *entry) info() Info {
	return Info{
		ID:        e.id,
		Created:   e.created,
		Updated:   e.updated,
		Runs:      e.runs,
		Running:   e.cancel != nil,
		HasResult: e.latest != nil,
		LastError: e.lastErr,
	}
}

// Manager owns every session. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time

	// OnSuperseded, when set, is called with the session and request ID of
	// every run cancelled by a newer submission.
	OnSuperseded func(sessionID, requestID string)
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// NewID returns a fresh random session or request ID.
func NewID() string { return uuid.NewString() }

// Submit runs fn for session id, creating the session if needed. Any run
// still in flight for id is cancelled first. The result is stored as the
// session's latest only if no newer request arrived meanwhile; otherwise
// Submit returns ErrSuperseded.
func (m *Manager) Submit(ctx context.Context, id, requestID string, fn Run) (*result.Set, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{id: id, created: m.now()}
		m.sessions[id] = e
	}
	stale := ""
	if e.cancel != nil {
		e.cancel()
		stale = e.requestID
	}
	e.gen++
	gen := e.gen
	e.requestID = requestID
	e.cancel = cancel
	e.runs++
	e.updated = m.now()
	m.mu.Unlock()

	if stale != "" {
		logrus.WithFields(logrus.Fields{
			"session": id,
			"request": stale,
		}).Debug("superseded in-flight correction")
		if m.OnSuperseded != nil {
			m.OnSuperseded(id, stale)
		}
	}

	r, err := fn(runCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != e || e.gen != gen {
		return nil, ErrSuperseded
	}
	e.cancel = nil
	e.updated = m.now()
	if err != nil {
		e.lastErr = err.Error()
		return r, err
	}
	e.lastErr = ""
	e.latest = r
	return r, nil
}

// Latest returns the most recent successful result of session id.
func (m *Manager) Latest(id string) (*result.Set, Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, Info{}, ErrNotFound
	}
	if e.latest == nil {
		return nil, e.info(), ErrNoResult
	}
	return e.latest, e.info(), nil
}

// Get describes session id.
func (m *Manager) Get(id string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return e.info(), nil
}

// Delete cancels any run of session id and forgets it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(m.sessions, id)
	return nil
}

// Prune deletes idle sessions not updated for idleFor and returns how many
// were removed. Running sessions are kept.
func (m *Manager) Prune(idleFor time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idleFor)
	n := 0
	for id, e := range m.sessions {
		if e.cancel == nil && e.updated.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// List describes every session, ordered by ID.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
