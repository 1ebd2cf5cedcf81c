// Package fsutil provides idempotent on-disk layout helpers shared by the
// daemon and client: the state directory, the socket/pid file paths, and
// per-pipeline workspace directories.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the directory, rooted at the project directory (or the
// current directory), under which the daemon keeps its write-ahead log,
// snapshots, socket, and pid file.
const StateDirName = ".oj"

// EnsureStateDir ensures the state directory exists under basePath (or the
// current directory, if basePath is empty or "."), returning its full path.
func EnsureStateDir(basePath string) (string, error) {
	dir := StateDirName
	if basePath != "" && basePath != "." {
		dir = filepath.Join(basePath, StateDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fsutil: create state dir %q: %w", dir, err)
	}
	return dir, nil
}

// EnsureWorkspaceDir ensures a pipeline's workspace directory exists and
// returns its path. Workspaces live under stateDir/workspaces/<pipelineID>.
func EnsureWorkspaceDir(stateDir, pipelineID string) (string, error) {
	dir := filepath.Join(stateDir, "workspaces", pipelineID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fsutil: create workspace dir %q: %w", dir, err)
	}
	return dir, nil
}

// SocketPath returns the UNIX domain socket path for a state directory.
func SocketPath(stateDir string) string { return filepath.Join(stateDir, "daemon.sock") }

// PidFilePath returns the pid file path for a state directory.
func PidFilePath(stateDir string) string { return filepath.Join(stateDir, "daemon.pid") }

// LogFilePath returns the daemon's log file path for a state directory.
func LogFilePath(stateDir string) string { return filepath.Join(stateDir, "daemon.log") }

// WALDirPath returns the write-ahead log directory for a state directory.
func WALDirPath(stateDir string) string { return filepath.Join(stateDir, "operations") }

// Exists reports whether a path exists, swallowing the "not exist" case.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
