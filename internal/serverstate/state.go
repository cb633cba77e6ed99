package serverstate

import (
	"sync/atomic"
	"time"
)

// Status values.
const (
	StatusNotReady = "not_ready"
	StatusLoading  = "loading"
	StatusReady    = "ready"
	StatusDraining = "draining"
	StatusUnknown  = "unknown"
)

// State is the lifecycle snapshot of the server. All fields are updated
// together so callers always observe a consistent snapshot.
type State struct {
	Status    string    `json:"status"`
	Draining  bool      `json:"draining"`
	Device    string    `json:"device,omitempty"`
	Model     string    `json:"model,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines how the server state is persisted.
type Store interface {
	Load() State
	Store(State)
}

var active atomic.Pointer[storeBox]

type storeBox struct{ Store }

func init() {
	UseStore(NewMemoryStore())
}

// UseStore replaces the active Store. A nil store is ignored.
func UseStore(s Store) {
	if s != nil {
		active.Store(&storeBox{s})
	}
}

func current() Store { return active.Load().Store }

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a process-local Store initialized to not_ready.
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

// draining is process-local so a shared store never carries one
// instance's drain into another instance or into a restart.
var draining atomic.Bool

// Get returns the current snapshot.
func Get() State {
	st := current().Load()
	st.Draining = draining.Load()
	return st
}

// SetState updates the status string.
func SetState(status string) {
	update(func(st *State) { st.Status = status })
}

// GetState returns the current status string.
func GetState() string { return Get().Status }

// SetModel records the model and device chosen at start-up.
func SetModel(model, device string) {
	update(func(st *State) {
		st.Model = model
		st.Device = device
	})
}

// StartDrain marks the server as draining.
func StartDrain() {
	draining.Store(true)
	update(func(st *State) {
		st.Draining = true
		st.Status = StatusDraining
	})
}

// StopDrain clears the draining flag.
func StopDrain() { draining.Store(false) }

// IsDraining reports whether this process is draining.
func IsDraining() bool { return draining.Load() }

func update(fn func(*State)) {
	s := current()
	st := s.Load()
	fn(&st)
	st.UpdatedAt = time.Now().UTC()
	s.Store(st)
}
