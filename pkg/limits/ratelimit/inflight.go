package ratelimit

import (
	"sync"
	"sync/atomic"
)

// Reservations serializes admission per key and counts admitted requests
// that have not yet been released.
type Reservations struct {
	mu   sync.Mutex
	keys map[string]*keyState
}

type keyState struct {
	mu       sync.Mutex
	inflight atomic.Int64
	refs     int // guarded by Reservations.mu
}

// NewReservations creates an empty reservation table.
func NewReservations() *Reservations {
	return &Reservations{keys: make(map[string]*keyState)}
}

// Lock acquires the admission lock for key. The caller must call Unlock on
// the returned guard.
func (r *Reservations) Lock(key string) *Guard {
	st := r.acquire(key)
	st.mu.Lock()
	return &Guard{r: r, key: key, st: st}
}

// InFlight returns the number of outstanding slots for key.
func (r *Reservations) InFlight(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.keys[key]; ok {
		return st.inflight.Load()
	}
	return 0
}

// Len returns the number of keys currently tracked.
func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func (r *Reservations) acquire(key string) *keyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[key]
	if !ok {
		st = &keyState{}
		r.keys[key] = st
	}
	st.refs++
	return st
}

func (r *Reservations) release(key string, st *keyState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st.refs--
	if st.refs == 0 && r.keys[key] == st {
		delete(r.keys, key)
	}
}

// Guard is a held admission lock for one key.
type Guard struct {
	r        *Reservations
	key      string
	st       *keyState
	unlocked bool
}

// InFlight returns the outstanding slots for the guarded key.
func (g *Guard) InFlight() int64 {
	return g.st.inflight.Load()
}

// Reserve takes a slot for the guarded key. The slot outlives the guard and
// must be released once the request's usage is recorded or abandoned.
func (g *Guard) Reserve() *Slot {
	g.r.mu.Lock()
	g.st.refs++
	g.r.mu.Unlock()
	g.st.inflight.Add(1)
	return &Slot{r: g.r, key: g.key, st: g.st}
}

// Unlock releases the admission lock. Calling Unlock more than once is a
// no-op.
func (g *Guard) Unlock() {
	if g.unlocked {
		return
	}
	g.unlocked = true
	g.st.mu.Unlock()
	g.r.release(g.key, g.st)
}

// Slot is one admitted, not yet recorded request.
type Slot struct {
	r        *Reservations
	key      string
	st       *keyState
	released atomic.Bool
}

// Release gives the slot back. It is safe to call on a nil slot and to call
// more than once.
func (s *Slot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.st.inflight.Add(-1)
	s.r.release(s.key, s.st)
}

// Settle runs record under the admission lock of the slot's key and releases
// the slot before the lock is dropped. An admission for the same key
// therefore sees the request either in flight or recorded, never both.
// A nil slot just runs record.
func (s *Slot) Settle(record func() error) error {
	if s == nil {
		return record()
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	err := record()
	s.Release()
	return err
}
