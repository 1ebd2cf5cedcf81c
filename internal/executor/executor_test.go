package executor

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
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/scheduler"
	"github.com/alfredjeanlab/oj/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, *wal.Store, *session.Fake) {
	exec, store, sessions, _ := newTestExecutorWithRepo(t)
	return exec, store, sessions
}

func newTestExecutorWithRepo(t *testing.T) (*Executor, *wal.Store, *session.Fake, *repo.Fake) {
	t.Helper()
	dir := t.TempDir()
	store, err := wal.Open(filepath.Join(dir, "operations"), "m")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sched := scheduler.New()
	sessions := session.NewFake()
	repoAdapter := repo.NewFake()
	exec := New(store, sched, sessions, repoAdapter, notify.Noop{}, clock.System{}, dir)
	return exec, store, sessions, repoAdapter
}

func TestPersistEffectAppendsAndMaterializesOperation(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	op := wal.NewPipelineCreate("p1", "build", "demo", nil, "init")

	_, err := exec.Execute(context.Background(), effect.Persist(op))
	require.NoError(t, err)

	p, ok := store.State().GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "init", p.Phase)
}

func TestShellEffectProducesShellCompletedEvent(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ev, err := exec.Execute(context.Background(), effect.Shell("p1", "init", "exit 0", t.TempDir(), nil))
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, 0, ev.ExitCode)
}

func TestShellEffectCapturesNonZeroExit(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ev, err := exec.Execute(context.Background(), effect.Shell("p1", "init", "exit 3", t.TempDir(), nil))
	require.NoError(t, err)
	require.Equal(t, 3, ev.ExitCode)
}

func TestSpawnEffectPreparesWorkspaceAndCallsAdapter(t *testing.T) {
	exec, _, sessions := newTestExecutor(t)
	cwd := filepath.Join(t.TempDir(), "ws")

	_, err := exec.Execute(context.Background(), effect.Spawn("demo", "demo-pipeline", "claude", map[string]string{"OJ_PROMPT": "do the thing"}, cwd))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(cwd, "CLAUDE.md"))
	require.NoError(t, err)
	require.Contains(t, string(b), "do the thing")
	require.Contains(t, string(b), "# demo-pipeline")
	require.Contains(t, sessions.Calls(), "spawn")
}

func TestSendEffectForwardsToSessionAdapter(t *testing.T) {
	exec, _, sessions := newTestExecutor(t)
	_, err := exec.Execute(context.Background(), effect.Spawn("demo", "demo-pipeline", "claude", nil, t.TempDir()))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), effect.Send("demo", "continue"))
	require.NoError(t, err)
	require.Contains(t, sessions.Calls(), "send")
}

func TestSetTimerThenCancelRemovesIt(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	sched := scheduler.New()
	exec.scheduler = sched

	_, err := exec.Execute(context.Background(), effect.SetTimer("t1", 0))
	require.NoError(t, err)
	require.Equal(t, 1, sched.Len())

	_, err = exec.Execute(context.Background(), effect.CancelTimer("t1"))
	require.NoError(t, err)
	require.Equal(t, 0, sched.Len())
}

func TestSetTimerFiresRelativeToInjectedClock(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	sched := scheduler.New()
	exec.scheduler = sched
	fake := clock.NewFake(time.Unix(0, 0))
	exec.clk = fake

	_, err := exec.Execute(context.Background(), effect.SetTimer("timeout:p1", 10*time.Minute))
	require.NoError(t, err)

	require.Empty(t, sched.Poll(fake.Now().Add(9*time.Minute)))
	fired := sched.Poll(fake.Now().Add(10 * time.Minute))
	require.Len(t, fired, 1)
	require.Equal(t, "timeout:p1", fired[0].ID)
}

func TestWorkspacePreparationIsIdempotent(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	cwd := filepath.Join(t.TempDir(), "ws")

	require.NoError(t, exec.prepareWorkspace("demo", cwd, "prompt"))
	first, err := os.ReadFile(filepath.Join(cwd, "CLAUDE.md"))
	require.NoError(t, err)

	require.NoError(t, exec.prepareWorkspace("demo", cwd, "prompt"))
	second, err := os.ReadFile(filepath.Join(cwd, "CLAUDE.md"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}
