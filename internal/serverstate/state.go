package serverstate

import (
	"sync"
	"time"
)

// State describes the server lifecycle: the status string shown to operators,
// whether a drain is underway, and when the status last changed.
type State struct {
	Status   string    `json:"status"`
	Draining bool      `json:"draining"`
	Since    time.Time `json:"since,omitzero"`
}

// Store persists the lifecycle state. The default keeps it in memory; a
// Redis-backed Store lets a restarted server pick up where it left off.
type Store interface {
	Load() State
	Store(State)
}

var (
	activeMu sync.RWMutex
	active   Store = NewMemoryStore()
)

// UseStore replaces the active Store. Passing nil is a no-op.
func UseStore(s Store) {
	if s == nil {
		return
	}
	activeMu.Lock()
	active = s
	activeMu.Unlock()
}

func store() Store {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

// mutate applies fn to the current state and persists the result. The Since
// timestamp advances only when fn changed something.
func mutate(fn func(*State)) {
	s := store()
	st := s.Load()
	before := st
	fn(&st)
	if st.Status != before.Status || st.Draining != before.Draining {
		st.Since = time.Now()
	}
	s.Store(st)
}

// memoryStore is the default in-process Store.
type memoryStore struct {
	mu sync.RWMutex
	st State
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *memoryStore {
	return &memoryStore{st: State{Status: "not_ready"}}
}

func (m *memoryStore) Load() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

func (m *memoryStore) Store(s State) {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
}

// SetState updates the server status string.
func SetState(status string) {
	mutate(func(st *State) { st.Status = status })
}

// GetState returns the current server status.
func GetState() string {
	return store().Load().Status
}

// StartDrain marks the server as draining. Draining is one-way; it ends with
// process exit.
func StartDrain() {
	mutate(func(st *State) {
		st.Draining = true
		st.Status = "draining"
	})
}

// IsDraining reports whether the server is draining.
func IsDraining() bool {
	return store().Load().Draining
}

// Snapshot returns the full state.
func Snapshot() State {
	return store().Load()
}
