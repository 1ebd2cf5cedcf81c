// Package effect defines the declarative side-effect requests emitted by
// state machines and interpreted by the executor.
package effect

import (
	"time"

	"github.com/alfredjeanlab/oj/internal/event"
)

// Kind tags an Effect's variant.
type Kind string

const (
	KindPersist     Kind = "persist"
	KindSpawn       Kind = "spawn"
	KindKill        Kind = "kill"
	KindSend        Kind = "send"
	KindShell       Kind = "shell"
	KindSetTimer    Kind = "set_timer"
	KindCancelTimer Kind = "cancel_timer"
	KindEmit        Kind = "emit"
	KindNotify      Kind = "notify"

	KindWorkspaceCreate Kind = "workspace_create"
	KindWorkspaceDelete Kind = "workspace_delete"
)

// Effect is a side-effect a state machine wants performed. Exactly one set
// of fields is meaningful, selected by Kind.
type Effect struct {
	Kind Kind

	// Persist
	Operation any // a wal.Operation value, kept as any to avoid an import cycle; executor type-asserts.

	// Spawn
	WorkspaceID  string
	PipelineName string // human-readable pipeline name, written into the workspace's CLAUDE.md header
	Command      string
	Env          map[string]string
	Cwd          string

	// Kill / Send
	SessionID string
	Input     string

	// Shell
	PipelineID string
	Phase      string

	// SetTimer / CancelTimer
	TimerID  string
	Duration time.Duration

	// Emit
	Event event.Event

	// Notify
	NotifyTitle   string
	NotifyMessage string

	// WorkspaceCreate / WorkspaceDelete
	WorkspacePath   string
	WorkspaceBranch string
}

// Persist builds a Persist effect.
func Persist(op any) Effect { return Effect{Kind: KindPersist, Operation: op} }

// Spawn builds a Spawn effect. pipelineName is the display name written into
// the spawned workspace's CLAUDE.md header, distinct from workspaceID which
// identifies the session/workspace record.
func Spawn(workspaceID, pipelineName, command string, env map[string]string, cwd string) Effect {
	return Effect{Kind: KindSpawn, WorkspaceID: workspaceID, PipelineName: pipelineName, Command: command, Env: env, Cwd: cwd}
}

// Kill builds a Kill effect.
func Kill(sessionID string) Effect { return Effect{Kind: KindKill, SessionID: sessionID} }

// Send builds a Send effect.
func Send(sessionID, input string) Effect {
	return Effect{Kind: KindSend, SessionID: sessionID, Input: input}
}

// Shell builds a Shell effect.
func Shell(pipelineID, phase, command, cwd string, env map[string]string) Effect {
	return Effect{Kind: KindShell, PipelineID: pipelineID, Phase: phase, Command: command, Cwd: cwd, Env: env}
}

// SetTimer builds a SetTimer effect.
func SetTimer(id string, d time.Duration) Effect {
	return Effect{Kind: KindSetTimer, TimerID: id, Duration: d}
}

// CancelTimer builds a CancelTimer effect.
func CancelTimer(id string) Effect { return Effect{Kind: KindCancelTimer, TimerID: id} }

// Emit builds an Emit effect.
func Emit(e event.Event) Effect { return Effect{Kind: KindEmit, Event: e} }

// Notify builds a Notify effect.
func Notify(title, message string) Effect {
	return Effect{Kind: KindNotify, NotifyTitle: title, NotifyMessage: message}
}

// WorkspaceCreate builds a WorkspaceCreate effect: check out branch as a new
// worktree bound to pipelineID. The executor chooses the on-disk path.
func WorkspaceCreate(pipelineID, branch string) Effect {
	return Effect{Kind: KindWorkspaceCreate, PipelineID: pipelineID, WorkspaceBranch: branch}
}

// WorkspaceDelete builds a WorkspaceDelete effect: remove pipelineID's
// worktree.
func WorkspaceDelete(pipelineID, path string) Effect {
	return Effect{Kind: KindWorkspaceDelete, PipelineID: pipelineID, WorkspacePath: path}
}
