// Package monitor inspects running agent sessions on each recurring check
// timer, classifies them as running, idle, exited, or errored, and decides
// which runbook-declared action (nudge/done/fail/restart/recover/escalate)
// to run in response.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alfredjeanlab/oj/internal/adapters/session"
	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/alfredjeanlab/oj/internal/statemachine"
	"github.com/alfredjeanlab/oj/internal/wal"
)

// Interval is how often a spawned agent phase's session is checked.
const Interval = 10 * time.Second

// TimerID returns the recurring session-check timer id for a pipeline.
func TimerID(pipelineID string) string { return fmt.Sprintf("session:%s:check", pipelineID) }

// ParseTimerID extracts the pipeline id from a session-check timer id built
// by TimerID.
func ParseTimerID(timerID string) (string, bool) {
	const prefix, suffix = "session:", ":check"
	if !strings.HasPrefix(timerID, prefix) || !strings.HasSuffix(timerID, suffix) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(timerID, prefix), suffix), true
}

// ClassifyError maps raw session output to one of the error kinds an
// on_error rule can match. An empty string means none was recognised, so
// only a catch-all (no match field) rule applies.
func ClassifyError(output string) string {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "no internet"), strings.Contains(lower, "network unreachable"), strings.Contains(lower, "could not resolve host"):
		return "no_internet"
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "panic"), strings.Contains(lower, "segmentation fault"), strings.Contains(lower, "fatal error"):
		return "crash"
	default:
		return ""
	}
}

// MatchErrorRule scans rules in declaration order and returns the first
// whose Match equals kind, falling back to the first catch-all rule (empty
// Match) if no exact match is found.
func MatchErrorRule(rules []runbook.ErrorRule, kind string) (runbook.Action, bool) {
	var fallback *runbook.Action
	for i := range rules {
		r := rules[i]
		if kind != "" && r.Match == kind {
			return r.Action, true
		}
		if r.Match == "" && fallback == nil {
			fallback = &r.Action
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return runbook.Action{}, false
}

// Tick is the input to one session-check evaluation.
type Tick struct {
	PipelineID   string
	PipelineName string
	Phase        string
	Session      state.Session
	Agent        runbook.AgentDef
	Command      string
	Cwd          string
	Env          map[string]string
}

// Result is the outcome of one session-check evaluation.
type Result struct {
	Session state.Session
	Effects []effect.Effect
	// Rearm reports whether the caller should reschedule the recurring
	// check timer. False only after an escalate action; nothing re-arms the
	// check after that (a pipeline:resume custom event is only logged by the
	// runtime).
	Rearm bool
}

// Monitor evaluates sessions against a session adapter's captured output.
type Monitor struct {
	sessions session.Adapter
}

// New returns a Monitor backed by the given session adapter.
func New(sessions session.Adapter) *Monitor {
	return &Monitor{sessions: sessions}
}

// Tick captures in.Session's current output, advances the session state
// machine, and — on an idle, exit, or error transition — dispatches the
// runbook-declared action.
func (m *Monitor) Tick(ctx context.Context, clk clock.Clock, in Tick) (Result, error) {
	output, alive, exitCode, err := m.sessions.Capture(ctx, in.Session.ID)
	if err != nil {
		return Result{}, fmt.Errorf("monitor: capture %s: %w", in.Session.ID, err)
	}

	wasIdle := in.Session.State == state.SessionIdle
	hb := statemachine.SessionHeartbeat{
		OutputHash: xxhash.Sum64String(output),
		HasOutput:  output != "",
		Alive:      alive,
		ExitCode:   exitCode,
	}
	sm := statemachine.EvaluateHeartbeat(in.Session, hb, clk)

	res := Result{
		Session: sm.Next,
		Effects: append([]effect.Effect{}, sm.Effects...),
		Rearm:   true,
	}

	switch {
	case sm.Next.State == state.SessionDead && exitCode == 0:
		res.Effects = append(res.Effects, m.dispatch(in, in.Agent.OnExit, "")...)
		res.Rearm = in.Agent.OnExit.Action != runbook.ActionEscalate

	case sm.Next.State == state.SessionDead:
		kind := ClassifyError(output)
		action, _ := MatchErrorRule(in.Agent.OnError, kind)
		res.Effects = append(res.Effects, m.dispatch(in, action, kind)...)
		res.Rearm = action.Action != runbook.ActionEscalate
		if action.Action == runbook.ActionRestart || action.Action == runbook.ActionRecover {
			res.Session = respawnedSession(in.Session)
		}

	case sm.Next.State == state.SessionIdle && !wasIdle:
		res.Effects = append(res.Effects, m.dispatch(in, in.Agent.OnIdle, "")...)
		res.Rearm = in.Agent.OnIdle.Action != runbook.ActionEscalate
	}

	return res, nil
}

// dispatch builds the effects for one resolved action.
func (m *Monitor) dispatch(in Tick, action runbook.Action, errorKind string) []effect.Effect {
	switch action.Action {
	case runbook.ActionNudge:
		msg := action.Message
		if msg == "" {
			msg = "continue"
		}
		return []effect.Effect{effect.Send(in.Session.ID, msg)}

	case runbook.ActionDone:
		return []effect.Effect{effect.Emit(event.AgentDone(in.PipelineID))}

	case runbook.ActionFail:
		msg := action.Message
		if msg == "" {
			msg = errorKind
		}
		return []effect.Effect{effect.Emit(event.AgentError(in.PipelineID, msg))}

	case runbook.ActionRestart:
		return []effect.Effect{
			effect.Kill(in.Session.ID),
			effect.Spawn(in.PipelineID, in.PipelineName, in.Command, in.Env, in.Cwd),
		}

	case runbook.ActionRecover:
		return []effect.Effect{
			effect.Kill(in.Session.ID),
			effect.Spawn(in.PipelineID, in.PipelineName, in.Command, recoverEnv(in.Env, in.Agent, action), in.Cwd),
		}

	case runbook.ActionEscalate:
		return []effect.Effect{
			effect.Persist(wal.NewPhaseStatusUpdate(in.PipelineID, wal.PhaseWaiting)),
			effect.Notify("pipeline escalated", fmt.Sprintf("%s: %s needs attention (%s)", in.PipelineID, in.Phase, describeEscalation(errorKind))),
		}
	}
	return nil
}

// respawnedSession resets a session record to Starting after a restart or
// recover action has killed and re-spawned its process under the same id.
func respawnedSession(sess state.Session) state.Session {
	sess.State = state.SessionStarting
	sess.LastOutputHash = 0
	sess.LastHeartbeat = time.Time{}
	sess.IdleSince = time.Time{}
	sess.DeadReason = ""
	return sess
}

func describeEscalation(errorKind string) string {
	if errorKind == "" {
		return "idle or exited with no recovery rule"
	}
	return errorKind
}

// recoverEnv rebuilds the agent's prompt input for a recover action: the
// rule's message replaces the prompt outright, or its append text is
// concatenated onto the existing prompt.
func recoverEnv(base map[string]string, agent runbook.AgentDef, action runbook.Action) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	prompt := agent.Prompt
	switch {
	case action.Message != "":
		prompt = action.Message
	case action.Append != "":
		prompt = prompt + "\n" + action.Append
	}
	out["OJ_PROMPT"] = prompt
	return out
}
