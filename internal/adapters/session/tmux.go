package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TmuxAdapter spawns, inspects, and tears down agent processes as panes in
// named tmux sessions, one tmux session per pipeline.
type TmuxAdapter struct {
	prefix string
}

// NewTmuxAdapter returns a TmuxAdapter whose tmux session names carry the
// given prefix, so that sessions created by this daemon are identifiable
// (and collectible) independent of whatever else is running under tmux.
func NewTmuxAdapter(prefix string) *TmuxAdapter {
	return &TmuxAdapter{prefix: prefix}
}

func (a *TmuxAdapter) prefixedName(id string) string {
	if strings.HasPrefix(id, a.prefix) {
		return id
	}
	return a.prefix + id
}

// Spawn starts command inside a fresh detached tmux session named after id,
// with cwd as its starting directory and env merged into the pane's
// environment via tmux's -e flag.
func (a *TmuxAdapter) Spawn(ctx context.Context, id, command, cwd string, env map[string]string) error {
	name := a.prefixedName(id)
	args := []string{"new-session", "-d", "-s", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, command)
	if err := a.run(ctx, args...); err != nil {
		return fmt.Errorf("session: tmux new-session %s: %w", name, err)
	}
	return nil
}

// Kill destroys the tmux session backing id, if it still exists.
func (a *TmuxAdapter) Kill(ctx context.Context, id string) error {
	name := a.prefixedName(id)
	if err := a.run(ctx, "kill-session", "-t", name); err != nil {
		if strings.Contains(err.Error(), "can't find session") {
			return nil
		}
		return fmt.Errorf("session: tmux kill-session %s: %w", name, err)
	}
	return nil
}

// Send types input into id's pane followed by Enter, as if a user typed it.
func (a *TmuxAdapter) Send(ctx context.Context, id, input string) error {
	name := a.prefixedName(id)
	if err := a.run(ctx, "send-keys", "-t", name, input, "Enter"); err != nil {
		return fmt.Errorf("session: tmux send-keys %s: %w", name, err)
	}
	return nil
}

// Capture returns the last 200 lines of id's pane output, plus liveness and
// exit status. tmux has no notion of an agent's exit code once its pane has
// closed, so Capture reports exitCode 0 whenever the session is gone and
// reports alive=true for any session still present, regardless of whether
// the foreground command inside it has actually finished.
func (a *TmuxAdapter) Capture(ctx context.Context, id string) (output string, alive bool, exitCode int, err error) {
	name := a.prefixedName(id)
	if !a.hasSession(ctx, name) {
		return "", false, 0, nil
	}
	out, runErr := a.output(ctx, "capture-pane", "-t", name, "-p", "-S", "-200")
	if runErr != nil {
		return "", true, 0, fmt.Errorf("session: tmux capture-pane %s: %w", name, runErr)
	}
	return out, true, 0, nil
}

func (a *TmuxAdapter) hasSession(ctx context.Context, name string) bool {
	return a.run(ctx, "has-session", "-t", name) == nil
}

func (a *TmuxAdapter) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s", strings.TrimSpace(stderr.String()))
		}
		return err
	}
	return nil
}

func (a *TmuxAdapter) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s", strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}
