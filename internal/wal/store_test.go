package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendIsVisibleInMaterializedState(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "test-machine")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(NewPipelineCreate("p1", "build", "demo", nil, "init"))
	require.NoError(t, err)

	p, ok := store.State().GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "init", p.Phase)
}

func TestSequenceNumbersAreMonotoneWithNoGaps(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "m")
	require.NoError(t, err)
	defer store.Close()

	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := store.Append(NewPipelineCreate("p", "build", "demo", nil, "init"))
		require.NoError(t, err)
		require.Equal(t, last+1, seq)
		last = seq
	}
}

func TestReplayDeterminism(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "m")
	require.NoError(t, err)
	_, err = store.Append(NewPipelineCreate("p1", "build", "demo", nil, "init"))
	require.NoError(t, err)
	_, err = store.Append(NewPipelineTransition("p1", "plan"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir, "m")
	require.NoError(t, err)
	defer reopened.Close()

	p, ok := reopened.State().GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "plan", p.Phase)
}

// TestCorruptTailIsTruncated grounds scenario S5: append two entries,
// truncate the second by half a line, reopen, and expect replay to yield
// only the first operation with the WAL file truncated to one line.
func TestCorruptTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "m")
	require.NoError(t, err)
	_, err = store.Append(NewPipelineCreate("p1", "build", "demo", nil, "init"))
	require.NoError(t, err)
	_, err = store.Append(NewPipelineTransition("p1", "plan"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	path := filepath.Join(dir, walFileName)
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(b)
	require.Len(t, lines, 2)
	corrupted := append(lines[0], lines[1][:len(lines[1])/2]...)
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	reopened, err := Open(dir, "m")
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(1), reopened.Sequence())
	p, ok := reopened.State().GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "init", p.Phase)

	b2, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, lines[0], b2)
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i+1])
			start = i + 1
		}
	}
	return out
}

func TestSnapshotLawReplayEquivalence(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "m")
	require.NoError(t, err)
	_, err = store.Append(NewPipelineCreate("p1", "build", "demo", nil, "init"))
	require.NoError(t, err)
	require.NoError(t, store.Snapshot("snap-1"))
	_, err = store.Append(NewPipelineTransition("p1", "plan"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir, "m")
	require.NoError(t, err)
	defer reopened.Close()

	p, ok := reopened.State().GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "plan", p.Phase)
}
