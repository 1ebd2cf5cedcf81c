// Package scheduler implements the priority queue of time-driven wake-ups
// that drives session monitor ticks, maintenance sweeps, and phase timeouts.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Kind is an opaque tag the runtime maps to one or more events when an
// entry fires.
type Kind string

const (
	KindTaskTick        Kind = "task_tick"
	KindQueueTick       Kind = "queue_tick"
	KindPollTick        Kind = "poll_tick"
	KindSessionCheck    Kind = "session_check"
	KindMaintenanceTick Kind = "maintenance_tick"
	KindPhaseTimeout    Kind = "phase_timeout"
)

// Item is one entry in the scheduler, returned by Poll when it fires.
type Item struct {
	ID     string
	Kind   Kind
	FireAt time.Time
}

type entry struct {
	id       string
	kind     Kind
	fireAt   time.Time
	sequence uint64
	index    int
	repeat   time.Duration // zero means one-shot
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].sequence < h[j].sequence
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is a min-heap of (fire_at, sequence) entries keyed by an
// application-chosen string id, supporting cancel and overwrite-by-id.
type Scheduler struct {
	mu       sync.Mutex
	heap     entryHeap
	byID     map[string]*entry
	sequence uint64
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{byID: map[string]*entry{}}
}

// Schedule arms a one-shot entry id to fire at at, overwriting any prior
// entry with the same id.
func (s *Scheduler) Schedule(id string, at time.Time, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(id, at, kind, 0)
}

// ScheduleRepeating arms a repeating entry that first fires at firstAt and,
// after firing, re-enqueues itself at the poll time plus period.
func (s *Scheduler) ScheduleRepeating(id string, firstAt time.Time, period time.Duration, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(id, firstAt, kind, period)
}

func (s *Scheduler) scheduleLocked(id string, at time.Time, kind Kind, repeat time.Duration) {
	if old, ok := s.byID[id]; ok {
		heap.Remove(&s.heap, old.index)
		delete(s.byID, id)
	}
	s.sequence++
	e := &entry{id: id, kind: kind, fireAt: at, sequence: s.sequence, repeat: repeat}
	heap.Push(&s.heap, e)
	s.byID[id] = e
}

// Cancel removes id from the schedule. A subsequent Poll will never report
// it, even if it was already due.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byID, id)
}

// Poll removes and returns every entry whose fire time is at or before now,
// in fire-time order. Repeating entries are re-armed at now + period before
// Poll returns.
func (s *Scheduler) Poll(now time.Time) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for s.heap.Len() > 0 && !s.heap[0].fireAt.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		delete(s.byID, e.id)
		out = append(out, Item{ID: e.id, Kind: e.kind, FireAt: e.fireAt})

		if e.repeat > 0 {
			s.scheduleLocked(e.id, now.Add(e.repeat), e.kind, e.repeat)
		}
	}
	return out
}

// NextFireTime returns the earliest upcoming deadline, if any.
func (s *Scheduler) NextFireTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heap.Len() == 0 {
		return time.Time{}, false
	}
	return s.heap[0].fireAt, true
}

// Len returns the number of armed entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}
