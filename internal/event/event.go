// Package event defines the runtime-internal event variants that drive state
// machine transitions. Events are not persisted by default; only the
// operations they provoke are written to the write-ahead log.
package event

import "encoding/json"

// Kind tags an Event's variant for JSON encoding and for dispatch.
type Kind string

const (
	KindCommandInvoked Kind = "command_invoked"
	KindWorkerWake     Kind = "worker_wake"
	KindSessionStarted Kind = "session_started"
	KindSessionOutput  Kind = "session_output"
	KindSessionExited  Kind = "session_exited"
	KindTimer          Kind = "timer"
	KindAgentDone      Kind = "agent_done"
	KindAgentError     Kind = "agent_error"
	KindShellCompleted Kind = "shell_completed"
	KindCustom         Kind = "custom"
)

// Event is a unit of input to the runtime. Exactly one of the typed fields
// is meaningful, selected by Kind; this mirrors the donor source's tagged
// enum while staying plain-data for JSON transport over the IPC protocol.
type Event struct {
	Kind Kind `json:"kind"`

	Command string            `json:"command,omitempty"`
	Args    map[string]string `json:"args,omitempty"`

	Worker string `json:"worker,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	Output    string `json:"output,omitempty"`
	ExitCode  int    `json:"exit_code,omitempty"`

	TimerID string `json:"timer_id,omitempty"`

	PipelineID string `json:"pipeline_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Phase      string `json:"phase,omitempty"`

	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandInvoked builds a CommandInvoked event.
func CommandInvoked(command string, args map[string]string) Event {
	return Event{Kind: KindCommandInvoked, Command: command, Args: args}
}

// WorkerWake builds a WorkerWake event.
func WorkerWake(worker string) Event {
	return Event{Kind: KindWorkerWake, Worker: worker}
}

// SessionStarted builds a SessionStarted event.
func SessionStarted(sessionID string) Event {
	return Event{Kind: KindSessionStarted, SessionID: sessionID}
}

// SessionOutput builds a SessionOutput event.
func SessionOutput(sessionID, output string) Event {
	return Event{Kind: KindSessionOutput, SessionID: sessionID, Output: output}
}

// SessionExited builds a SessionExited event.
func SessionExited(sessionID string, exitCode int) Event {
	return Event{Kind: KindSessionExited, SessionID: sessionID, ExitCode: exitCode}
}

// Timer builds a Timer event.
func Timer(id string) Event {
	return Event{Kind: KindTimer, TimerID: id}
}

// AgentDone builds an AgentDone event.
func AgentDone(pipelineID string) Event {
	return Event{Kind: KindAgentDone, PipelineID: pipelineID}
}

// AgentError builds an AgentError event.
func AgentError(pipelineID, errMsg string) Event {
	return Event{Kind: KindAgentError, PipelineID: pipelineID, Error: errMsg}
}

// ShellCompleted builds a ShellCompleted event.
func ShellCompleted(pipelineID, phase string, exitCode int) Event {
	return Event{Kind: KindShellCompleted, PipelineID: pipelineID, Phase: phase, ExitCode: exitCode}
}

// Custom builds a Custom event carrying an arbitrary JSON payload.
func Custom(name string, data json.RawMessage) Event {
	return Event{Kind: KindCustom, Name: name, Data: data}
}
