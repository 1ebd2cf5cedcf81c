// Package state holds the in-memory materialized view of all pipelines,
// sessions, workspaces, and workers, derived purely from the write-ahead
// log's operation stream.
package state

import (
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/oj/internal/wal"
)

// Pipeline is one running (or completed) instance of a runbook pipeline
// definition.
type Pipeline struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Kind           string            `json:"kind"`
	Phase          string            `json:"phase"`
	PhaseStatus    wal.PhaseStatus   `json:"phase_status"`
	SessionID      string            `json:"session_id,omitempty"`
	WorkspacePath  string            `json:"workspace_path,omitempty"`
	Inputs         map[string]string `json:"inputs,omitempty"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	PhaseStartedAt time.Time         `json:"phase_started_at"`
}

// SessionState is the Session.state enum.
type SessionState string

const (
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionIdle     SessionState = "idle"
	SessionDead     SessionState = "dead"
)

// Session tracks one spawned agent process attached to a pane.
type Session struct {
	ID             string        `json:"id"`
	PipelineID     string        `json:"pipeline_id"`
	State          SessionState  `json:"state"`
	IdleSince      time.Time     `json:"idle_since,omitempty"`
	DeadReason     string        `json:"dead_reason,omitempty"`
	LastHeartbeat  time.Time     `json:"last_heartbeat,omitempty"`
	LastOutputHash uint64        `json:"last_output_hash,omitempty"`
	IdleThreshold  time.Duration `json:"idle_threshold"`
}

// IdleTime returns now minus the last heartbeat, or zero if no heartbeat has
// ever been recorded.
func (s Session) IdleTime(now time.Time) time.Duration {
	if s.LastHeartbeat.IsZero() {
		return 0
	}
	return now.Sub(s.LastHeartbeat)
}

// IsIdleByHeartbeat reports whether the session has gone silent for at least
// its idle threshold. It is false until a heartbeat has been observed.
func (s Session) IsIdleByHeartbeat(now time.Time) bool {
	if s.LastHeartbeat.IsZero() {
		return false
	}
	return s.IdleTime(now) >= s.IdleThreshold
}

// Workspace is an on-disk version-control worktree bound to a pipeline.
type Workspace struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// WorkerStatus is the Worker.status enum.
type WorkerStatus string

const (
	WorkerStopped    WorkerStatus = "stopped"
	WorkerIdle       WorkerStatus = "idle"
	WorkerProcessing WorkerStatus = "processing"
)

// Worker represents a consumer that pulls eligible pipelines off a queue.
type Worker struct {
	Name        string       `json:"name"`
	Status      WorkerStatus `json:"status"`
	PipelineID  string       `json:"pipeline_id,omitempty"`
	Concurrency int          `json:"concurrency"`
}

// IsAvailable is true only when the worker is Idle.
func (w Worker) IsAvailable() bool { return w.Status == WorkerIdle }

// Storable is the serializable payload of a snapshot: everything State
// holds, without the mutex.
type Storable struct {
	Pipelines  map[string]Pipeline  `json:"pipelines"`
	Sessions   map[string]Session   `json:"sessions"`
	Workspaces map[string]Workspace `json:"workspaces"`
	Workers    map[string]Worker    `json:"workers"`
}

// State is the materialized, in-memory view of the system. Journaled records
// are mutated only by Apply, called by the executor's single writer; the
// unjournaled session and worker records are also replaced directly by
// PutSession and PutWorker. All other callers only read, under the RWMutex.
type State struct {
	mu sync.RWMutex
	Storable
}

// New returns an empty State.
func New() *State {
	return &State{Storable: Storable{
		Pipelines:  map[string]Pipeline{},
		Sessions:   map[string]Session{},
		Workspaces: map[string]Workspace{},
		Workers:    map[string]Worker{},
	}}
}

// Apply mutates the state according to op. It is total: every Operation
// variant has defined behavior, including no-ops for not-found targets.
func (s *State) Apply(op wal.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op.Kind {
	case wal.OpPipelineCreate:
		if _, exists := s.Pipelines[op.ID]; exists {
			return
		}
		initial := op.InitialPhase
		if initial == "" {
			initial = "init"
		}
		now := time.Now()
		s.Pipelines[op.ID] = Pipeline{
			ID:             op.ID,
			Name:           op.Name,
			Kind:           op.PipelineKind,
			Phase:          initial,
			PhaseStatus:    wal.PhasePending,
			Inputs:         op.Inputs,
			Outputs:        map[string]string{},
			CreatedAt:      now,
			PhaseStartedAt: now,
		}

	case wal.OpPipelineTransition:
		p, ok := s.Pipelines[op.ID]
		if !ok {
			return
		}
		p.Phase = op.Phase
		p.PhaseStatus = wal.PhasePending
		p.PhaseStartedAt = time.Now()
		s.Pipelines[op.ID] = p

	case wal.OpPhaseStatusUpdate:
		p, ok := s.Pipelines[op.PipelineID]
		if !ok {
			return
		}
		p.PhaseStatus = op.Status
		s.Pipelines[op.PipelineID] = p

	case wal.OpPipelineDelete:
		delete(s.Pipelines, op.ID)

	case wal.OpSessionCreate:
		s.Sessions[op.ID] = Session{
			ID:         op.ID,
			PipelineID: op.PipelineID,
			State:      SessionStarting,
		}
		if p, ok := s.Pipelines[op.PipelineID]; ok {
			p.SessionID = op.ID
			s.Pipelines[op.PipelineID] = p
		}

	case wal.OpSessionDelete:
		sess, ok := s.Sessions[op.ID]
		if ok {
			if p, pok := s.Pipelines[sess.PipelineID]; pok && p.SessionID == op.ID {
				p.SessionID = ""
				s.Pipelines[sess.PipelineID] = p
			}
		}
		delete(s.Sessions, op.ID)

	case wal.OpWorkspaceCreate:
		s.Workspaces[op.ID] = Workspace{ID: op.ID, Path: op.Path, Branch: op.Branch}
		if p, ok := s.Pipelines[op.ID]; ok {
			p.WorkspacePath = op.Path
			s.Pipelines[op.ID] = p
		}

	case wal.OpWorkspaceDelete:
		delete(s.Workspaces, op.ID)

	case wal.OpSnapshotTaken:
		// No state mutation; the WAL uses this marker during replay only.
	}
}

// GetPipeline resolves id exactly first, then as a unique id prefix. It
// returns (pipeline, true) only when exactly one id matches.
func (s *State) GetPipeline(idOrPrefix string) (Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.Pipelines[idOrPrefix]; ok {
		return p, true
	}

	var match Pipeline
	count := 0
	for id, p := range s.Pipelines {
		if strings.HasPrefix(id, idOrPrefix) {
			match = p
			count++
			if count > 1 {
				return Pipeline{}, false
			}
		}
	}
	if count == 1 {
		return match, true
	}
	return Pipeline{}, false
}

// ListPipelines returns a snapshot slice of all pipelines.
func (s *State) ListPipelines() []Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pipeline, 0, len(s.Pipelines))
	for _, p := range s.Pipelines {
		out = append(out, p)
	}
	return out
}

// GetSession returns the session for id, if any.
func (s *State) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.Sessions[id]
	return sess, ok
}

// PutSession overwrites the in-memory session record directly. This is used
// by the session monitor to record heartbeat/idle transitions that are not
// themselves WAL operations (only create/delete are persisted; state within
// a live session's lifetime is volatile by design, per the "no retained
// intermediate output" non-goal).
func (s *State) PutSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions[sess.ID] = sess
}

// GetWorker returns the worker named name, if any.
func (s *State) GetWorker(name string) (Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.Workers[name]
	return w, ok
}

// PutWorker upserts a worker record.
func (s *State) PutWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Workers[w.Name] = w
}

// Snapshot returns a deep-enough copy of the storable state for
// serialization.
func (s *State) Snapshot() Storable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Storable{
		Pipelines:  make(map[string]Pipeline, len(s.Pipelines)),
		Sessions:   make(map[string]Session, len(s.Sessions)),
		Workspaces: make(map[string]Workspace, len(s.Workspaces)),
		Workers:    make(map[string]Worker, len(s.Workers)),
	}
	for k, v := range s.Pipelines {
		out.Pipelines[k] = v
	}
	for k, v := range s.Sessions {
		out.Sessions[k] = v
	}
	for k, v := range s.Workspaces {
		out.Workspaces[k] = v
	}
	for k, v := range s.Workers {
		out.Workers[k] = v
	}
	return out
}

// Restore replaces the state's contents with a previously captured
// snapshot, used when loading from a WAL snapshot file.
func (s *State) Restore(snap Storable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Pipelines == nil {
		snap.Pipelines = map[string]Pipeline{}
	}
	if snap.Sessions == nil {
		snap.Sessions = map[string]Session{}
	}
	if snap.Workspaces == nil {
		snap.Workspaces = map[string]Workspace{}
	}
	if snap.Workers == nil {
		snap.Workers = map[string]Worker{}
	}
	s.Storable = snap
}
