package statemachine

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/stretchr/testify/require"
)

func TestPipelineSessionExitedCleanCompletesPhase(t *testing.T) {
	p := state.Pipeline{ID: "p1", SessionID: "p1", Phase: "build"}
	fc := clock.NewFake(time.Now())
	effects := PipelineTransition(p, event.SessionExited("p1", 0), fc, runbook.Runbook{})
	require.NotEmpty(t, effects)
}

func TestPipelineShellCompletedNonZeroFailsPhase(t *testing.T) {
	p := state.Pipeline{ID: "p1", Phase: "build"}
	fc := clock.NewFake(time.Now())
	effects := PipelineTransition(p, event.ShellCompleted("p1", "build", 1), fc, runbook.Runbook{})
	require.Len(t, effects, 2)
}

func TestNextPhaseAfterCompletionUsesDeclaredNext(t *testing.T) {
	rb, err := runbook.Load(`
[pipeline.test]
[[pipeline.test.phase]]
name = "init"
run = "echo hi"
next = "execute"

[[pipeline.test.phase]]
name = "execute"
run = "echo run"
`)
	require.NoError(t, err)

	p := state.Pipeline{Kind: "test", Phase: "init"}
	require.Equal(t, "execute", NextPhaseAfterCompletion(p, rb))
}

func TestNextPhaseAfterCompletionFallsBackToDone(t *testing.T) {
	rb, err := runbook.Load(`
[pipeline.test]
[[pipeline.test.phase]]
name = "only"
run = "echo hi"
`)
	require.NoError(t, err)

	p := state.Pipeline{Kind: "test", Phase: "only"}
	require.Equal(t, "done", NextPhaseAfterCompletion(p, rb))
}

func TestSessionStartingBecomesRunningOnFirstHeartbeat(t *testing.T) {
	fc := clock.NewFake(time.Now())
	sess := state.Session{ID: "s1", State: state.SessionStarting, IdleThreshold: time.Minute}
	res := EvaluateHeartbeat(sess, SessionHeartbeat{Alive: true}, fc)
	require.Equal(t, state.SessionRunning, res.Next.State)
}

func TestSessionGoesIdleAfterThresholdWithNoNewOutput(t *testing.T) {
	now := time.Now()
	fc := clock.NewFake(now)
	sess := state.Session{
		ID:             "s1",
		State:          state.SessionRunning,
		IdleThreshold:  10 * time.Second,
		LastHeartbeat:  now.Add(-20 * time.Second),
		LastOutputHash: 42,
	}
	res := EvaluateHeartbeat(sess, SessionHeartbeat{Alive: true, HasOutput: true, OutputHash: 42}, fc)
	require.Equal(t, state.SessionIdle, res.Next.State)
}

func TestSessionReturnsToRunningOnFreshOutput(t *testing.T) {
	fc := clock.NewFake(time.Now())
	sess := state.Session{ID: "s1", State: state.SessionIdle, LastOutputHash: 1, IdleThreshold: time.Minute}
	res := EvaluateHeartbeat(sess, SessionHeartbeat{Alive: true, HasOutput: true, OutputHash: 2}, fc)
	require.Equal(t, state.SessionRunning, res.Next.State)
}

func TestSessionProcessExitAlwaysGoesDead(t *testing.T) {
	fc := clock.NewFake(time.Now())
	sess := state.Session{ID: "s1", State: state.SessionRunning, IdleThreshold: time.Minute}
	res := EvaluateHeartbeat(sess, SessionHeartbeat{Alive: false, ExitCode: 1}, fc)
	require.Equal(t, state.SessionDead, res.Next.State)
}

func TestWorkerTakePipelineNoopWhenNotAvailable(t *testing.T) {
	w := state.Worker{Name: "w1", Status: state.WorkerProcessing, PipelineID: "p1"}
	got := WorkerTakePipeline(w, "p2")
	require.Equal(t, "p1", got.PipelineID)
}

func TestWorkerLifecycle(t *testing.T) {
	w := state.Worker{Name: "w1", Status: state.WorkerStopped}
	w = WorkerStart(w)
	require.True(t, w.IsAvailable())

	w = WorkerTakePipeline(w, "p1")
	require.Equal(t, state.WorkerProcessing, w.Status)
	require.False(t, w.IsAvailable())

	w = WorkerFinish(w)
	require.True(t, w.IsAvailable())
}
