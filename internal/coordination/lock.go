// Package coordination implements named advisory locks and the periodic
// maintenance sweep that reclaims ones left stale by a crashed holder.
package coordination

import (
	"sync"
	"time"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/event"
)

// Lock is a named advisory resource guard, used to serialize access to a
// shared resource such as a single branch or worktree.
type Lock struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	StaleAfter time.Duration
}

// IsFree reports whether the lock currently has no holder.
func (l Lock) IsFree() bool { return l.Holder == "" }

// IsStale reports whether the lock is held and has been held for at least
// StaleAfter.
func (l Lock) IsStale(now time.Time) bool {
	if l.IsFree() {
		return false
	}
	return now.Sub(l.AcquiredAt) >= l.StaleAfter
}

// Manager owns a set of named locks. Unlike the donor's CoordinationManager
// (which also tracks semaphores and capability guards), only the lock
// primitive is ported: no SPEC_FULL.md component currently needs counted
// permits or capability guards, and porting unused primitives would be dead
// weight (see DESIGN.md).
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*Lock
	warned  map[string]bool
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{locks: map[string]*Lock{}, warned: map[string]bool{}}
}

// Acquire creates or re-acquires the named lock for holder. It returns false
// if the lock is already held by a different holder.
func (m *Manager) Acquire(name, holder string, staleAfter time.Duration, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[name]
	if !ok {
		l = &Lock{Name: name, StaleAfter: staleAfter}
		m.locks[name] = l
	}
	if !l.IsFree() && l.Holder != holder {
		return false
	}
	l.Holder = holder
	l.AcquiredAt = now
	delete(m.warned, name)
	return true
}

// Release frees the named lock unconditionally.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok {
		l.Holder = ""
		l.AcquiredAt = time.Time{}
	}
	delete(m.warned, name)
}

// Get returns a copy of the named lock, if it exists.
func (m *Manager) Get(name string) (Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		return Lock{}, false
	}
	return *l, true
}

// Names returns every currently tracked lock name.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.locks))
	for n := range m.locks {
		out = append(out, n)
	}
	return out
}

// Tick emits a LockStale event, once per staleness episode, for every
// held-but-stale lock that has not already warned.
func (m *Manager) Tick(clk clock.Clock) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := clk.Now()
	var events []event.Event
	for name, l := range m.locks {
		if l.IsStale(now) && !m.warned[name] {
			m.warned[name] = true
			events = append(events, event.Custom("coordination:lock_stale", rawLockPayload(name, l.Holder)))
		}
	}
	return events
}

// ReclaimStale releases every stale lock and emits LockReleased for each.
func (m *Manager) ReclaimStale(clk clock.Clock) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := clk.Now()
	var events []event.Event
	for name, l := range m.locks {
		if l.IsStale(now) {
			holder := l.Holder
			l.Holder = ""
			l.AcquiredAt = time.Time{}
			delete(m.warned, name)
			events = append(events, event.Custom("coordination:lock_released", rawLockPayload(name, holder)))
		}
	}
	return events
}

func rawLockPayload(name, holder string) []byte {
	return []byte(`{"name":"` + name + `","holder":"` + holder + `"}`)
}

// Stats summarizes the current lock population. Held and Stale are surfaced
// through the Status IPC response, and Stale also as the oj_locks_stale
// Prometheus gauge; Total is not exported.
type Stats struct {
	Total int
	Held  int
	Stale int
}

// CollectStats computes Stats for the manager's current locks.
func CollectStats(m *Manager, clk clock.Clock) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := clk.Now()
	var s Stats
	for _, l := range m.locks {
		s.Total++
		if !l.IsFree() {
			s.Held++
			if l.IsStale(now) {
				s.Stale++
			}
		}
	}
	return s
}
