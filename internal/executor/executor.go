// Package executor interprets Effects emitted by the state machines: it is
// the single writer of materialized state (via the WAL) and the only caller
// of the session/repo/notify adapters that acts on a session, repository or
// notification (the session monitor separately reads output via Capture).
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/oj/internal/adapters/notify"
	"github.com/alfredjeanlab/oj/internal/adapters/repo"
	"github.com/alfredjeanlab/oj/internal/adapters/session"
	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/metrics"
	"github.com/alfredjeanlab/oj/internal/scheduler"
	"github.com/alfredjeanlab/oj/internal/tracing"
	"github.com/alfredjeanlab/oj/internal/wal"
)

// Executor interprets Effects, one at a time, in the order a transition
// produced them.
type Executor struct {
	wal       *wal.Store
	scheduler *scheduler.Scheduler
	sessions  session.Adapter
	repo      repo.Adapter
	notifier  notify.Adapter
	clk       clock.Clock
	projectRoot string
}

// New builds an Executor over the given collaborators.
func New(store *wal.Store, sched *scheduler.Scheduler, sessions session.Adapter, repoAdapter repo.Adapter, notifier notify.Adapter, clk clock.Clock, projectRoot string) *Executor {
	return &Executor{wal: store, scheduler: sched, sessions: sessions, repo: repoAdapter, notifier: notifier, clk: clk, projectRoot: projectRoot}
}

// Execute interprets one effect and returns the event it produced, if any.
func (e *Executor) Execute(ctx context.Context, eff effect.Effect) (ev *event.Event, err error) {
	ctx, span := tracing.Tracer("executor").Start(ctx, "executor.effect", trace.WithAttributes(
		attribute.String("effect.kind", string(eff.Kind)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	metrics.EffectsTotal.WithLabelValues(string(eff.Kind)).Inc()

	switch eff.Kind {
	case effect.KindPersist:
		op, ok := eff.Operation.(wal.Operation)
		if !ok {
			return nil, fmt.Errorf("executor: persist effect carried non-Operation payload %T", eff.Operation)
		}
		if _, err := e.wal.Append(op); err != nil {
			return nil, fmt.Errorf("executor: persist: %w", err)
		}
		return nil, nil

	case effect.KindSpawn:
		pipelineName := eff.PipelineName
		if pipelineName == "" {
			pipelineName = eff.WorkspaceID
		}
		if err := e.prepareWorkspace(pipelineName, eff.Cwd, eff.Env["OJ_PROMPT"]); err != nil {
			return nil, fmt.Errorf("executor: prepare workspace: %w", err)
		}
		if err := e.sessions.Spawn(ctx, eff.WorkspaceID, eff.Command, eff.Cwd, eff.Env); err != nil {
			return nil, fmt.Errorf("executor: spawn session: %w", err)
		}
		return nil, nil

	case effect.KindKill:
		if err := e.sessions.Kill(ctx, eff.SessionID); err != nil {
			return nil, fmt.Errorf("executor: kill session: %w", err)
		}
		return nil, nil

	case effect.KindSend:
		input := eff.Input
		if !strings.HasSuffix(input, "\n") {
			input += "\n"
		}
		if err := e.sessions.Send(ctx, eff.SessionID, input); err != nil {
			return nil, fmt.Errorf("executor: send to session: %w", err)
		}
		return nil, nil

	case effect.KindShell:
		exitCode, err := runShell(ctx, eff.Command, eff.Cwd, eff.Env)
		if err != nil {
			return nil, fmt.Errorf("executor: shell: %w", err)
		}
		ev := event.ShellCompleted(eff.PipelineID, eff.Phase, exitCode)
		return &ev, nil

	case effect.KindSetTimer:
		e.scheduler.Schedule(eff.TimerID, e.clk.Now().Add(eff.Duration), scheduler.KindPhaseTimeout)
		return nil, nil

	case effect.KindCancelTimer:
		e.scheduler.Cancel(eff.TimerID)
		return nil, nil

	case effect.KindEmit:
		return &eff.Event, nil

	case effect.KindNotify:
		if err := e.notifier.Notify(eff.NotifyTitle, eff.NotifyMessage); err != nil {
			return nil, fmt.Errorf("executor: notify: %w", err)
		}
		return nil, nil

	case effect.KindWorkspaceCreate:
		path := filepath.Join(e.projectRoot, "workspaces", eff.PipelineID)
		if err := e.repo.WorktreeAdd(ctx, path, eff.WorkspaceBranch); err != nil {
			return nil, fmt.Errorf("executor: create workspace: %w", err)
		}
		if _, err := e.wal.Append(wal.NewWorkspaceCreate(eff.PipelineID, path, eff.WorkspaceBranch)); err != nil {
			return nil, fmt.Errorf("executor: persist workspace create: %w", err)
		}
		return nil, nil

	case effect.KindWorkspaceDelete:
		if err := e.repo.WorktreeRemove(ctx, eff.WorkspacePath); err != nil {
			return nil, fmt.Errorf("executor: remove workspace: %w", err)
		}
		if _, err := e.wal.Append(wal.NewWorkspaceDelete(eff.PipelineID)); err != nil {
			return nil, fmt.Errorf("executor: persist workspace delete: %w", err)
		}
		return nil, nil
	}

	return nil, fmt.Errorf("executor: unknown effect kind %q", eff.Kind)
}

// prepareWorkspace is idempotent: it creates the workspace directory if
// absent, writes CLAUDE.md with the agent's completion instructions, and
// copies .claude/settings.json to .claude/settings.local.json if the
// project defines one.
func (e *Executor) prepareWorkspace(pipelineName, cwd, prompt string) error {
	if cwd == "" {
		return nil
	}
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	claudeMD := fmt.Sprintf("# %s\n\n%s\n\n## Completion\n\nWhen finished, run `oj done` (or `oj done --error \"<message>\"` on failure).\n", pipelineName, prompt)
	if err := os.WriteFile(filepath.Join(cwd, "CLAUDE.md"), []byte(claudeMD), 0o644); err != nil {
		return fmt.Errorf("write CLAUDE.md: %w", err)
	}

	srcSettings := filepath.Join(e.projectRoot, ".claude", "settings.json")
	if _, err := os.Stat(srcSettings); err == nil {
		b, err := os.ReadFile(srcSettings)
		if err != nil {
			return fmt.Errorf("read project settings: %w", err)
		}
		dstDir := filepath.Join(cwd, ".claude")
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("create workspace .claude dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dstDir, "settings.local.json"), b, 0o644); err != nil {
			return fmt.Errorf("write workspace settings: %w", err)
		}
	}

	return nil
}

func runShell(ctx context.Context, command, cwd string, env map[string]string) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = mergeEnv(os.Environ(), env)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func mergeEnv(base []string, overrides map[string]string) []string {
	out := append([]string{}, base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}
