package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/oj/internal/adapters/notify"
	"github.com/alfredjeanlab/oj/internal/adapters/repo"
	"github.com/alfredjeanlab/oj/internal/adapters/session"
	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/coordination"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/executor"
	"github.com/alfredjeanlab/oj/internal/id"
	"github.com/alfredjeanlab/oj/internal/monitor"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/scheduler"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/alfredjeanlab/oj/internal/wal"
	"github.com/stretchr/testify/require"
)

func writeRunbook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runbook.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRuntime(t *testing.T, runbookContent string, sessions session.Adapter) *Runtime {
	return newTestRuntimeWithClock(t, runbookContent, sessions, clock.System{})
}

func newTestRuntimeWithClock(t *testing.T, runbookContent string, sessions session.Adapter, clk clock.Clock) *Runtime {
	t.Helper()
	dir := t.TempDir()
	store, err := wal.Open(filepath.Join(dir, "operations"), "m")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rbPath := writeRunbook(t, runbookContent)
	registry, err := runbook.NewRegistry(rbPath)
	require.NoError(t, err)

	sched := scheduler.New()
	if sessions == nil {
		sessions = session.NewFake()
	}
	exec := executor.New(store, sched, sessions, repo.NewFake(), notify.Noop{}, clk, dir)
	mon := monitor.New(sessions)
	coord := coordination.NewManager()
	maint := coordination.NewMaintenanceTask(coordination.DefaultMaintenanceConfig(), clk)

	return New(store, sched, registry, exec, mon, coord, maint, clk, id.NewSequential("p-"))
}

const shellRunbook = `
[pipeline.build]
  [[pipeline.build.phase]]
  name = "compile"
  run = "exit 0"
  next = "package"

  [[pipeline.build.phase]]
  name = "package"
  run = "exit 0"
`

func TestShellPipelineRunsToCompletion(t *testing.T) {
	rt := newTestRuntime(t, shellRunbook, nil)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "build", nil)
	require.NoError(t, err)

	p, ok := rt.wal.State().GetPipeline(pipelineID)
	require.True(t, ok)
	require.Equal(t, "done", p.Phase)
	require.Equal(t, wal.PhaseCompleted, p.PhaseStatus)
}

func TestShellPipelineFailurePhaseRoutesToOnFail(t *testing.T) {
	rb := `
[pipeline.build]
  [[pipeline.build.phase]]
  name = "compile"
  run = "exit 1"
  on_fail = "cleanup"

  [[pipeline.build.phase]]
  name = "cleanup"
  run = "exit 0"
`
	rt := newTestRuntime(t, rb, nil)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "build", nil)
	require.NoError(t, err)

	p, ok := rt.wal.State().GetPipeline(pipelineID)
	require.True(t, ok)
	require.Equal(t, "cleanup", p.Phase)
	require.Equal(t, wal.PhaseFailed, p.PhaseStatus)
}

const agentRunbook = `
[agent.coder]
run = "fake-agent"
prompt = "do the task"

[pipeline.feature]
  [[pipeline.feature.phase]]
  name = "work"
  agent = "coder"
`

func TestAgentPipelineCompletesOnAgentDoneEvent(t *testing.T) {
	fake := session.NewFake()
	rt := newTestRuntime(t, agentRunbook, fake)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)
	require.Contains(t, fake.Calls(), "spawn")

	require.NoError(t, rt.dispatch(ctx, event.AgentDone(pipelineID)))

	p, ok := rt.wal.State().GetPipeline(pipelineID)
	require.True(t, ok)
	require.Equal(t, "done", p.Phase)
}

const rateLimitRunbook = `
[agent.coder]
run = "fake-agent"
prompt = "do the task"

  [[agent.coder.on_error]]
  match = "rate_limited"
  action = "recover"
  message = "please retry"

[pipeline.feature]
  [[pipeline.feature.phase]]
  name = "work"
  agent = "coder"
`

func TestRateLimitedSessionRecoversThenCompletes(t *testing.T) {
	fake := session.NewFake()
	rt := newTestRuntime(t, rateLimitRunbook, fake)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)

	fake.SetExited(pipelineID, 1)
	fake.SetOutput(pipelineID, "429 too many requests")

	require.NoError(t, rt.tickSessionCheck(ctx, monitor.TimerID(pipelineID)))

	sess, ok := rt.wal.State().GetSession(pipelineID)
	require.True(t, ok)
	require.Equal(t, state.SessionStarting, sess.State)

	calls := fake.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	var killed, spawnedTwice int
	for _, c := range calls {
		if c == "kill" {
			killed++
		}
		if c == "spawn" {
			spawnedTwice++
		}
	}
	require.Equal(t, 1, killed)
	require.Equal(t, 2, spawnedTwice)

	fake.SetOutput(pipelineID, "")
	require.NoError(t, rt.dispatch(ctx, event.AgentDone(pipelineID)))

	p, ok := rt.wal.State().GetPipeline(pipelineID)
	require.True(t, ok)
	require.Equal(t, "done", p.Phase)
}

func TestStatusReflectsActivePipelinesAndSessions(t *testing.T) {
	fake := session.NewFake()
	rt := newTestRuntime(t, agentRunbook, fake)
	ctx := context.Background()

	_, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)

	st := rt.Status()
	require.Equal(t, 1, st.PipelinesActive)
	require.Equal(t, 1, st.SessionsActive)
}

func TestPipelineSummariesAndDetailReflectState(t *testing.T) {
	rt := newTestRuntime(t, shellRunbook, nil)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "build", nil)
	require.NoError(t, err)

	summaries := rt.PipelineSummaries()
	require.Len(t, summaries, 1)
	require.Equal(t, pipelineID, summaries[0].ID)

	detail, ok := rt.PipelineDetail(pipelineID[:4])
	require.True(t, ok)
	require.Equal(t, pipelineID, detail.ID)
}

const pooledAgentRunbook = `
[worker.reviewers]
concurrency = 1

[agent.coder]
run = "fake-agent"
prompt = "do the task"

[pipeline.feature]
worker = "reviewers"
  [[pipeline.feature.phase]]
  name = "work"
  agent = "coder"
`

func TestWorkerPoolGatesConcurrentPipelinesAndDrainsQueueOnCompletion(t *testing.T) {
	fake := session.NewFake()
	rt := newTestRuntime(t, pooledAgentRunbook, fake)
	ctx := context.Background()

	first, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)
	second, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)

	// Only the pool's one worker slot is free, so only the first pipeline's
	// agent phase should have been entered; the second stays queued at its
	// initial phase with no session spawned for it yet.
	spawnCount := 0
	for _, c := range fake.Calls() {
		if c == "spawn" {
			spawnCount++
		}
	}
	require.Equal(t, 1, spawnCount)

	_, sessionExists := rt.wal.State().GetSession(second)
	require.False(t, sessionExists, "second pipeline's agent phase should not have been entered yet")

	worker, ok := rt.wal.State().GetWorker("reviewers-0")
	require.True(t, ok)
	require.Equal(t, first, worker.PipelineID)

	require.NoError(t, rt.dispatch(ctx, event.AgentDone(first)))

	firstPipeline, ok := rt.wal.State().GetPipeline(first)
	require.True(t, ok)
	require.Equal(t, "done", firstPipeline.Phase)

	_, sessionExists = rt.wal.State().GetSession(second)
	require.True(t, sessionExists, "second pipeline should have been dispatched once the worker freed up")

	worker, ok = rt.wal.State().GetWorker("reviewers-0")
	require.True(t, ok)
	require.Equal(t, second, worker.PipelineID)
}

const timeoutAgentRunbook = `
[agent.coder]
run = "fake-agent"
prompt = "do the task"
timeout = "1m"

[pipeline.feature]
  [[pipeline.feature.phase]]
  name = "work"
  agent = "coder"
`

func TestAgentPhaseTimeoutRoutesToFailedPhase(t *testing.T) {
	fake := session.NewFake()
	fakeClock := clock.NewFake(time.Now())
	rt := newTestRuntimeWithClock(t, timeoutAgentRunbook, fake, fakeClock)
	ctx := context.Background()

	pipelineID, err := rt.StartPipeline(ctx, "feature", nil)
	require.NoError(t, err)

	fakeClock.Advance(2 * time.Minute)
	require.NoError(t, rt.handleTimer(ctx, scheduler.Item{ID: "timeout:" + pipelineID, Kind: scheduler.KindPhaseTimeout}))

	p, ok := rt.wal.State().GetPipeline(pipelineID)
	require.True(t, ok)
	require.Equal(t, "failed", p.Phase)
	require.Equal(t, wal.PhaseFailed, p.PhaseStatus)
}

func TestMaintenanceTimerReclaimsStaleLock(t *testing.T) {
	fakeClock := clock.NewFake(time.Now())
	rt := newTestRuntimeWithClock(t, shellRunbook, nil, fakeClock)
	rt.coord.Acquire("branch:main", "worker-1", time.Minute, fakeClock.Now())

	fakeClock.Advance(2 * time.Minute)
	require.NoError(t, rt.handleTimer(context.Background(), scheduler.Item{ID: "maintenance", Kind: scheduler.KindMaintenanceTick}))

	lock, ok := rt.coord.Get("branch:main")
	require.True(t, ok)
	require.True(t, lock.IsFree())
}
