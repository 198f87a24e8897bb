// Package serverstate publishes the lifecycle status of the server. The state
// lives behind a Store so several replicas can share it through Redis.
package serverstate

import (
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle statuses.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
	StatusStopped  = "stopped"
	StatusUnknown  = "unknown"
)

// State is updated as a whole so readers always see a consistent snapshot.
type State struct {
	Status    string    `json:"status"`
	Draining  bool      `json:"draining"`
	Handler   string    `json:"handler,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Exclusive bool      `json:"exclusive"`
	Threading string    `json:"threading,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the state.
type Store interface {
	Load() State
	Store(State)
}

var (
	mu     sync.Mutex // serializes read-modify-write updates
	active atomic.Value
)

func init() {
	active.Store(storeHolder{NewMemoryStore()})
}

type storeHolder struct{ Store }

func current() Store { return active.Load().(storeHolder).Store }

// UseStore replaces the active Store and returns the previous one.
func UseStore(s Store) Store {
	prev := current()
	if s != nil {
		active.Store(storeHolder{s})
	}
	return prev
}

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns an in-process Store initialized to not_ready.
func NewMemoryStore() Store {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: StatusUnknown}
}

func (m *memoryStore) Store(s State) { m.v.Store(s) }

func update(fn func(*State)) {
	mu.Lock()
	defer mu.Unlock()
	s := current()
	st := s.Load()
	fn(&st)
	st.UpdatedAt = time.Now().UTC()
	s.Store(st)
}

// Get returns the current state.
func Get() State { return current().Load() }

// SetStatus updates the status string.
func SetStatus(status string) {
	update(func(st *State) { st.Status = status })
}

// Status returns the current status.
func Status() string { return Get().Status }

// SetHandler records the bound handler and the execution policy.
func SetHandler(name, mode string, exclusive bool, threading string) {
	update(func(st *State) {
		st.Handler = name
		st.Mode = mode
		st.Exclusive = exclusive
		st.Threading = threading
	})
}

// StartDrain marks the server as draining.
func StartDrain() {
	update(func(st *State) {
		st.Draining = true
		st.Status = StatusDraining
	})
}

// IsDraining reports whether the server is draining.
func IsDraining() bool { return Get().Draining }
