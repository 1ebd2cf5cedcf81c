// Package runbook parses, validates, and resolves the TOML documents that
// declare commands, pipelines, agents, and workers.
package runbook

import "github.com/BurntSushi/toml"

// Raw is the direct TOML-decoded shape of a runbook file, before
// validation and cross-reference resolution.
type Raw struct {
	Command  map[string]RawCommand  `toml:"command"`
	Pipeline map[string]RawPipeline `toml:"pipeline"`
	Agent    map[string]RawAgent    `toml:"agent"`
	Worker   map[string]RawWorker   `toml:"worker"`
}

// RawCommand is a top-level named shell invocation.
type RawCommand struct {
	Run string `toml:"run"`
}

// RawPipeline declares an ordered set of phases. Workspace/Branch opt the
// pipeline into a dedicated version-control worktree, created before its
// first phase runs and removed once it reaches a terminal phase.
type RawPipeline struct {
	Name      string            `toml:"name"`
	Inputs    []string          `toml:"inputs"`
	Defaults  map[string]string `toml:"defaults"`
	Phases    []RawPhase        `toml:"phase"`
	Workspace bool              `toml:"workspace"`
	Branch    string            `toml:"branch"`
	Worker    string            `toml:"worker"`
}

// RawPhase is one declared step inside a pipeline.
type RawPhase struct {
	Name    string `toml:"name"`
	Run     string `toml:"run"`
	Agent   string `toml:"agent"`
	Next    string `toml:"next"`
	OnFail  string `toml:"on_fail"`
}

// IsAgent reports whether this phase's run directive names an agent rather
// than a raw shell command.
func (p RawPhase) IsAgent() bool { return p.Agent != "" }

// RawAgent declares an interactive agent process.
type RawAgent struct {
	Run        string            `toml:"run"`
	Prompt     string            `toml:"prompt"`
	PromptFile string            `toml:"prompt_file"`
	Env        map[string]string `toml:"env"`
	Cwd        string            `toml:"cwd"`
	// OnIdle/OnExit/OnError accept either a bare action string or a table
	// (on_error additionally accepts an array of tables); BurntSushi/toml
	// decodes such polymorphic fields as opaque Primitives, resolved by
	// decodeAction/decodeErrorActions in loader.go once the expected shape
	// is known.
	OnIdle  *toml.Primitive `toml:"on_idle"`
	OnExit  *toml.Primitive `toml:"on_exit"`
	OnError *toml.Primitive `toml:"on_error"`
	// Timeout is a duration string (e.g. "15m") bounding the agent's total
	// run time for one phase entry. Empty means no total-timeout is armed.
	Timeout string `toml:"timeout"`
}

// RawWorker declares a pipeline-consuming worker pool.
type RawWorker struct {
	Concurrency int `toml:"concurrency"`
}

// ActionKind enumerates the bare action names the runbook may specify for
// on_idle/on_exit/on_error.
type ActionKind string

const (
	ActionNudge    ActionKind = "nudge"
	ActionDone     ActionKind = "done"
	ActionFail     ActionKind = "fail"
	ActionRestart  ActionKind = "restart"
	ActionRecover  ActionKind = "recover"
	ActionEscalate ActionKind = "escalate"
)

// RawAction is either a bare action string or an object
// { action, message?, append? } in TOML. Because BurntSushi/toml cannot
// unmarshal a field that is sometimes a string and sometimes a table
// directly into a Go union, the loader normalizes both shapes into this
// struct (see loader.go's decodeAction).
type RawAction struct {
	Action  ActionKind `toml:"action"`
	Message string     `toml:"message"`
	Append  string     `toml:"append"`
}

// RawErrorRule is one entry of an on_error match list.
type RawErrorRule struct {
	Match   string     `toml:"match"`
	Action  ActionKind `toml:"action"`
	Message string     `toml:"message"`
	Append  string     `toml:"append"`
}

