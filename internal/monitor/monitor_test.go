package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/alfredjeanlab/oj/internal/adapters/session"
	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestClassifyErrorRecognisesKnownKinds(t *testing.T) {
	require.Equal(t, "rate_limited", ClassifyError("Error: rate limit exceeded, try again later"))
	require.Equal(t, "no_internet", ClassifyError("curl: could not resolve host: api.example.com"))
	require.Equal(t, "timeout", ClassifyError("request timed out after 30s"))
	require.Equal(t, "crash", ClassifyError("panic: runtime error: index out of range"))
	require.Equal(t, "", ClassifyError("all good here"))
}

func TestMatchErrorRuleFirstExactMatchWins(t *testing.T) {
	rules := []runbook.ErrorRule{
		{Match: "rate_limited", Action: runbook.Action{Action: runbook.ActionRecover, Message: "retry"}},
		{Match: "", Action: runbook.Action{Action: runbook.ActionEscalate}},
	}
	action, ok := MatchErrorRule(rules, "rate_limited")
	require.True(t, ok)
	require.Equal(t, runbook.ActionRecover, action.Action)
}

func TestMatchErrorRuleFallsBackToCatchAll(t *testing.T) {
	rules := []runbook.ErrorRule{
		{Match: "rate_limited", Action: runbook.Action{Action: runbook.ActionRecover}},
		{Match: "", Action: runbook.Action{Action: runbook.ActionEscalate}},
	}
	action, ok := MatchErrorRule(rules, "crash")
	require.True(t, ok)
	require.Equal(t, runbook.ActionEscalate, action.Action)
}

func TestTickSendsNudgeOnIdleTransition(t *testing.T) {
	clk := clock.NewFake(time.Now())
	sessions := session.NewFake()
	sessions.SetOutput("s1", "same output")
	m := New(sessions)

	sess := state.Session{
		ID:             "s1",
		State:          state.SessionRunning,
		LastOutputHash: xxhash.Sum64String("same output"),
		LastHeartbeat:  clk.Now().Add(-time.Hour),
		IdleThreshold:  time.Minute,
	}
	agent := runbook.AgentDef{OnIdle: runbook.Action{Action: runbook.ActionNudge, Message: "keep going"}}

	res, err := m.Tick(context.Background(), clk, Tick{PipelineID: "p1", Session: sess, Agent: agent})
	require.NoError(t, err)
	require.Equal(t, state.SessionIdle, res.Session.State)
	require.True(t, res.Rearm)

	var found bool
	for _, e := range res.Effects {
		if e.Kind == effect.KindSend && e.Input == "keep going" {
			found = true
		}
	}
	require.True(t, found)
}

func TestTickRunsRecoverOnMatchedErrorRule(t *testing.T) {
	clk := clock.NewFake(time.Now())
	sessions := session.NewFake()
	sessions.SetExited("s1", 1)
	sessions.SetOutput("s1", "429 too many requests")
	m := New(sessions)

	sess := state.Session{ID: "s1", State: state.SessionRunning}
	agent := runbook.AgentDef{
		Prompt: "do the task",
		OnError: []runbook.ErrorRule{
			{Match: "rate_limited", Action: runbook.Action{Action: runbook.ActionRecover, Append: "please retry"}},
		},
	}

	res, err := m.Tick(context.Background(), clk, Tick{PipelineID: "p1", Session: sess, Agent: agent, Command: "claude", Cwd: "/tmp"})
	require.NoError(t, err)
	require.Equal(t, state.SessionStarting, res.Session.State)
	require.True(t, res.Rearm)

	var killed, spawned bool
	for _, e := range res.Effects {
		if e.Kind == effect.KindKill {
			killed = true
		}
		if e.Kind == effect.KindSpawn {
			spawned = true
			require.Contains(t, e.Env["OJ_PROMPT"], "please retry")
		}
	}
	require.True(t, killed)
	require.True(t, spawned)
}

func TestTickEscalatesAndDoesNotRearm(t *testing.T) {
	clk := clock.NewFake(time.Now())
	sessions := session.NewFake()
	sessions.SetExited("s1", 1)
	sessions.SetOutput("s1", "something unrecognisable broke")
	m := New(sessions)

	sess := state.Session{ID: "s1", State: state.SessionRunning}
	agent := runbook.AgentDef{
		OnError: []runbook.ErrorRule{{Match: "", Action: runbook.Action{Action: runbook.ActionEscalate}}},
	}

	res, err := m.Tick(context.Background(), clk, Tick{PipelineID: "p1", Phase: "work", Session: sess, Agent: agent})
	require.NoError(t, err)
	require.False(t, res.Rearm)

	var notified, persisted bool
	for _, e := range res.Effects {
		if e.Kind == effect.KindNotify {
			notified = true
		}
		if e.Kind == effect.KindPersist {
			persisted = true
		}
	}
	require.True(t, notified)
	require.True(t, persisted)
}

func TestTickRunsOnExitActionWhenSessionExitsCleanly(t *testing.T) {
	clk := clock.NewFake(time.Now())
	sessions := session.NewFake()
	sessions.SetExited("s1", 0)
	m := New(sessions)

	sess := state.Session{ID: "s1", State: state.SessionRunning}
	agent := runbook.AgentDef{OnExit: runbook.Action{Action: runbook.ActionDone}}

	res, err := m.Tick(context.Background(), clk, Tick{PipelineID: "p1", Session: sess, Agent: agent})
	require.NoError(t, err)

	var done bool
	for _, e := range res.Effects {
		if e.Kind == effect.KindEmit && e.Event.PipelineID == "p1" {
			done = true
		}
	}
	require.True(t, done)
}
