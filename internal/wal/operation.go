package wal

// OpKind tags an Operation's variant.
type OpKind string

const (
	OpPipelineCreate     OpKind = "pipeline_create"
	OpPipelineTransition OpKind = "pipeline_transition"
	OpPhaseStatusUpdate  OpKind = "phase_status_update"
	OpPipelineDelete     OpKind = "pipeline_delete"
	OpSessionCreate      OpKind = "session_create"
	OpSessionDelete      OpKind = "session_delete"
	OpWorkspaceCreate    OpKind = "workspace_create"
	OpWorkspaceDelete    OpKind = "workspace_delete"
	OpSnapshotTaken      OpKind = "snapshot_taken"
)

// PhaseStatus mirrors the pipeline phase_status enum.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseWaiting   PhaseStatus = "waiting"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// Operation is a tagged variant recorded in the write-ahead log. Exactly one
// set of fields is meaningful, selected by Kind. A single struct (rather than
// an interface with concrete types per variant) keeps JSON
// marshal/unmarshal trivial and matches the "one object per line" on-disk
// contract exactly.
type Operation struct {
	Kind OpKind `json:"kind"`

	// PipelineCreate
	ID           string            `json:"id,omitempty"`
	PipelineKind string            `json:"pipeline_kind,omitempty"`
	Name         string            `json:"name,omitempty"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	InitialPhase string            `json:"initial_phase,omitempty"`

	// PipelineTransition
	Phase string `json:"phase,omitempty"`

	// PhaseStatusUpdate
	PipelineID string      `json:"pipeline_id,omitempty"`
	Status     PhaseStatus `json:"status,omitempty"`

	// WorkspaceCreate
	Path   string `json:"path,omitempty"`
	Branch string `json:"branch,omitempty"`

	// SnapshotTaken
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// NewPipelineCreate builds a PipelineCreate operation, defaulting
// initial_phase to "init" for callers that don't set one explicitly -
// this mirrors the WAL's own backward-compatibility default applied on
// deserialize of legacy entries.
func NewPipelineCreate(id, kind, name string, inputs map[string]string, initialPhase string) Operation {
	if initialPhase == "" {
		initialPhase = "init"
	}
	return Operation{
		Kind:         OpPipelineCreate,
		ID:           id,
		PipelineKind: kind,
		Name:         name,
		Inputs:       inputs,
		InitialPhase: initialPhase,
	}
}

// NewPipelineTransition builds a PipelineTransition operation.
func NewPipelineTransition(id, phase string) Operation {
	return Operation{Kind: OpPipelineTransition, ID: id, Phase: phase}
}

// NewPhaseStatusUpdate builds a PhaseStatusUpdate operation.
func NewPhaseStatusUpdate(pipelineID string, status PhaseStatus) Operation {
	return Operation{Kind: OpPhaseStatusUpdate, PipelineID: pipelineID, Status: status}
}

// NewPipelineDelete builds a PipelineDelete operation.
func NewPipelineDelete(id string) Operation {
	return Operation{Kind: OpPipelineDelete, ID: id}
}

// NewSessionCreate builds a SessionCreate operation.
func NewSessionCreate(id, pipelineID string) Operation {
	return Operation{Kind: OpSessionCreate, ID: id, PipelineID: pipelineID}
}

// NewSessionDelete builds a SessionDelete operation.
func NewSessionDelete(id string) Operation {
	return Operation{Kind: OpSessionDelete, ID: id}
}

// NewWorkspaceCreate builds a WorkspaceCreate operation.
func NewWorkspaceCreate(id, path, branch string) Operation {
	return Operation{Kind: OpWorkspaceCreate, ID: id, Path: path, Branch: branch}
}

// NewWorkspaceDelete builds a WorkspaceDelete operation.
func NewWorkspaceDelete(id string) Operation {
	return Operation{Kind: OpWorkspaceDelete, ID: id}
}

// NewSnapshotTaken builds a SnapshotTaken operation.
func NewSnapshotTaken(snapshotID string) Operation {
	return Operation{Kind: OpSnapshotTaken, SnapshotID: snapshotID}
}
