package runbook

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Action is the resolved form of a bare action string or {action, message?,
// append?} table.
type Action struct {
	Action  ActionKind
	Message string
	Append  string
}

// ErrorRule is one resolved entry of an on_error match list.
type ErrorRule struct {
	Match   string // empty means catch-all
	Action  Action
}

// PhaseDef is the resolved form of RawPhase.
type PhaseDef struct {
	Name   string
	Shell  string // set when this phase runs a shell command
	Agent  string // set when this phase runs an agent
	Next   string
	OnFail string
}

// PipelineDef is the resolved form of RawPipeline.
type PipelineDef struct {
	Name      string
	Inputs    []string          // declared input names; see Validate for the has-a-default rule
	Defaults  map[string]string // fallback values applied to inputs the caller doesn't supply
	Phases    []PhaseDef
	Workspace bool
	Branch    string // rendered via Render against the pipeline's inputs plus {id}
	Worker    string // name of the worker pool gating entry into this pipeline's phases, if any
}

// ResolveInputs returns a copy of supplied with any declared input missing
// from it filled in from the pipeline's defaults.
func (p PipelineDef) ResolveInputs(supplied map[string]string) map[string]string {
	out := make(map[string]string, len(supplied)+len(p.Defaults))
	for k, v := range supplied {
		out[k] = v
	}
	for _, name := range p.Inputs {
		if _, ok := out[name]; !ok {
			if def, ok := p.Defaults[name]; ok {
				out[name] = def
			}
		}
	}
	return out
}

// PhaseByName returns the phase named name, if declared.
func (p PipelineDef) PhaseByName(name string) (PhaseDef, bool) {
	for _, ph := range p.Phases {
		if ph.Name == name {
			return ph, true
		}
	}
	return PhaseDef{}, false
}

// NextPhase returns the phase declaration-ordered after cur, if any.
func (p PipelineDef) NextPhase(cur string) (PhaseDef, bool) {
	for i, ph := range p.Phases {
		if ph.Name == cur && i+1 < len(p.Phases) {
			return p.Phases[i+1], true
		}
	}
	return PhaseDef{}, false
}

// AgentDef is the resolved form of RawAgent.
type AgentDef struct {
	Run        string
	Prompt     string
	PromptFile string
	Env        map[string]string
	Cwd        string
	OnIdle     Action
	OnExit     Action
	OnError    []ErrorRule
	// Timeout bounds one phase entry's total run time. Zero means
	// unbounded: no timeout timer is armed for this agent.
	Timeout time.Duration
}

// CommandDef is the resolved form of RawCommand.
type CommandDef struct {
	Run string
}

// WorkerDef is the resolved form of RawWorker.
type WorkerDef struct {
	Concurrency int
}

// Runbook is the fully resolved, cross-referenced set of definitions loaded
// from one TOML document.
type Runbook struct {
	Commands  map[string]CommandDef
	Pipelines map[string]PipelineDef
	Agents    map[string]AgentDef
	Workers   map[string]WorkerDef
}

// Defaults for action configuration missing from the runbook, per the
// backward-compatibility rule in the external interfaces section.
var (
	defaultOnIdle  = Action{Action: ActionNudge}
	defaultOnExit  = Action{Action: ActionEscalate}
	defaultOnError = []ErrorRule{{Match: "", Action: Action{Action: ActionEscalate}}}
)

// Load parses, resolves, and validates a runbook from TOML content.
func Load(content string) (Runbook, error) {
	raw, md, err := Parse(content)
	if err != nil {
		return Runbook{}, err
	}
	rb, err := resolve(raw, md)
	if err != nil {
		return Runbook{}, err
	}
	if err := Validate(rb); err != nil {
		return Runbook{}, err
	}
	return rb, nil
}

// LoadFile parses, resolves, and validates a runbook from a file on disk.
func LoadFile(path string) (Runbook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Runbook{}, fmt.Errorf("runbook: read %s: %w", path, err)
	}
	return Load(string(b))
}

func resolve(raw Raw, md toml.MetaData) (Runbook, error) {
	rb := Runbook{
		Commands:  map[string]CommandDef{},
		Pipelines: map[string]PipelineDef{},
		Agents:    map[string]AgentDef{},
		Workers:   map[string]WorkerDef{},
	}

	for name, c := range raw.Command {
		rb.Commands[name] = CommandDef{Run: c.Run}
	}

	for name, w := range raw.Worker {
		rb.Workers[name] = WorkerDef{Concurrency: w.Concurrency}
	}

	for name, p := range raw.Pipeline {
		phases := make([]PhaseDef, 0, len(p.Phases))
		for _, ph := range p.Phases {
			phases = append(phases, PhaseDef{
				Name:   ph.Name,
				Shell:  ph.Run,
				Agent:  ph.Agent,
				Next:   ph.Next,
				OnFail: ph.OnFail,
			})
		}
		rb.Pipelines[name] = PipelineDef{
			Name:      name,
			Inputs:    p.Inputs,
			Defaults:  p.Defaults,
			Phases:    phases,
			Workspace: p.Workspace,
			Branch:    p.Branch,
			Worker:    p.Worker,
		}
	}

	for name, a := range raw.Agent {
		onIdle, err := decodeAction(md, a.OnIdle, defaultOnIdle)
		if err != nil {
			return Runbook{}, fmt.Errorf("runbook: agent %s: on_idle: %w", name, err)
		}
		onExit, err := decodeAction(md, a.OnExit, defaultOnExit)
		if err != nil {
			return Runbook{}, fmt.Errorf("runbook: agent %s: on_exit: %w", name, err)
		}
		onError, err := decodeErrorActions(md, a.OnError)
		if err != nil {
			return Runbook{}, fmt.Errorf("runbook: agent %s: on_error: %w", name, err)
		}
		var timeout time.Duration
		if a.Timeout != "" {
			timeout, err = time.ParseDuration(a.Timeout)
			if err != nil {
				return Runbook{}, fmt.Errorf("runbook: agent %s: timeout: %w", name, err)
			}
		}
		rb.Agents[name] = AgentDef{
			Run:        a.Run,
			Prompt:     a.Prompt,
			PromptFile: a.PromptFile,
			Env:        a.Env,
			Cwd:        a.Cwd,
			OnIdle:     onIdle,
			OnExit:     onExit,
			OnError:    onError,
			Timeout:    timeout,
		}
	}

	return rb, nil
}

// decodeAction resolves a polymorphic on_idle/on_exit field: either a bare
// action string, or a table {action, message?, append?}. A nil Primitive
// means the key was absent from the TOML document entirely, and def applies
// per the "missing actions default to..." backward-compatibility rule.
func decodeAction(md toml.MetaData, prim *toml.Primitive, def Action) (Action, error) {
	if prim == nil {
		return def, nil
	}

	var bare string
	if err := md.PrimitiveDecode(*prim, &bare); err == nil {
		return Action{Action: ActionKind(bare)}, nil
	}

	var table RawAction
	if err := md.PrimitiveDecode(*prim, &table); err == nil {
		return Action{Action: table.Action, Message: table.Message, Append: table.Append}, nil
	}

	return Action{}, fmt.Errorf("expected a string or table")
}

// decodeErrorActions resolves the on_error field: a bare action string, a
// single table, or an array of match-rule tables scanned in declaration
// order with the first match winning.
func decodeErrorActions(md toml.MetaData, prim *toml.Primitive) ([]ErrorRule, error) {
	if prim == nil {
		return defaultOnError, nil
	}

	var bare string
	if err := md.PrimitiveDecode(*prim, &bare); err == nil {
		return []ErrorRule{{Action: Action{Action: ActionKind(bare)}}}, nil
	}

	var rules []RawErrorRule
	if err := md.PrimitiveDecode(*prim, &rules); err == nil {
		out := make([]ErrorRule, 0, len(rules))
		for _, r := range rules {
			out = append(out, ErrorRule{
				Match:  r.Match,
				Action: Action{Action: r.Action, Message: r.Message, Append: r.Append},
			})
		}
		return out, nil
	}

	var single RawErrorRule
	if err := md.PrimitiveDecode(*prim, &single); err == nil {
		return []ErrorRule{{Match: single.Match, Action: Action{Action: single.Action, Message: single.Message, Append: single.Append}}}, nil
	}

	return nil, fmt.Errorf("expected a string, table, or array of tables")
}
