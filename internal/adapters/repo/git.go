package repo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitAdapter manages on-disk worktrees of a single git repository via the
// git CLI.
type GitAdapter struct {
	root string
}

// NewGitAdapter returns a GitAdapter operating against the repository
// rooted at root.
func NewGitAdapter(root string) *GitAdapter {
	return &GitAdapter{root: root}
}

// WorktreeAdd creates branch and checks it out as a new worktree at path. If
// branch already exists, it returns ErrBranchExists and adds no worktree.
func (g *GitAdapter) WorktreeAdd(ctx context.Context, path, branch string) error {
	out, err := g.run(ctx, "worktree", "add", path, "-b", branch)
	if err != nil {
		if strings.Contains(out, "already exists") {
			return fmt.Errorf("%w: %s", ErrBranchExists, branch)
		}
		return fmt.Errorf("repo: git worktree add %s: %w", path, err)
	}
	return nil
}

// WorktreeRemove force-removes the worktree at path.
func (g *GitAdapter) WorktreeRemove(ctx context.Context, path string) error {
	if _, err := g.run(ctx, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("repo: git worktree remove %s: %w", path, err)
	}
	return nil
}

// WorktreeList returns the absolute paths of every worktree currently
// registered against the repository.
func (g *GitAdapter) WorktreeList(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("repo: git worktree list: %w", err)
	}
	var worktrees []string
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "worktree "); ok {
			worktrees = append(worktrees, rest)
		}
	}
	return worktrees, nil
}

func (g *GitAdapter) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stderr.String(), fmt.Errorf("%s", strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}
