package state

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/oj/internal/wal"
	"github.com/stretchr/testify/require"
)

func TestGetPipelineExactMatch(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("abc123", "build", "demo", nil, "init"))

	p, ok := s.GetPipeline("abc123")
	require.True(t, ok)
	require.Equal(t, "abc123", p.ID)
}

func TestGetPipelineUniquePrefixMatch(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("abcdef", "build", "demo", nil, "init"))

	p, ok := s.GetPipeline("abc")
	require.True(t, ok)
	require.Equal(t, "abcdef", p.ID)
}

func TestGetPipelineAmbiguousPrefixMatchFails(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("abc111", "build", "demo", nil, "init"))
	s.Apply(wal.NewPipelineCreate("abc222", "build", "demo", nil, "init"))

	_, ok := s.GetPipeline("abc")
	require.False(t, ok)
}

func TestPipelineCreateRejectsDuplicateID(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "first", nil, "init"))
	s.Apply(wal.NewPipelineCreate("p1", "build", "second", nil, "init"))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "first", p.Name)
}

func TestPipelineCreateDefaultsInitialPhase(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "demo", nil, ""))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "init", p.Phase)
}

func TestWorkspaceCreateSetsPipelinePath(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "demo", nil, "init"))
	s.Apply(wal.NewWorkspaceCreate("p1", "/tmp/ws", "feature/x"))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "/tmp/ws", p.WorkspacePath)
}

func TestSessionCreateSetsPipelineSessionID(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "demo", nil, "init"))
	s.Apply(wal.NewSessionCreate("p1", "p1"))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "p1", p.SessionID)
}

func TestSessionDeleteClearsPipelineSessionID(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "demo", nil, "init"))
	s.Apply(wal.NewSessionCreate("p1", "p1"))
	s.Apply(wal.NewSessionDelete("p1"))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "", p.SessionID)
}

func TestPipelineTransitionResetsPhaseStatus(t *testing.T) {
	s := New()
	s.Apply(wal.NewPipelineCreate("p1", "build", "demo", nil, "init"))
	s.Apply(wal.NewPhaseStatusUpdate("p1", wal.PhaseCompleted))
	s.Apply(wal.NewPipelineTransition("p1", "plan"))

	p, ok := s.GetPipeline("p1")
	require.True(t, ok)
	require.Equal(t, "plan", p.Phase)
	require.Equal(t, wal.PhasePending, p.PhaseStatus)
}

func TestSessionIdleDetectionWithNoHeartbeat(t *testing.T) {
	sess := Session{IdleThreshold: 10 * time.Second}
	require.False(t, sess.IsIdleByHeartbeat(time.Now()))
}

func TestSessionIdleDetectionAfterThreshold(t *testing.T) {
	now := time.Now()
	sess := Session{IdleThreshold: 10 * time.Second, LastHeartbeat: now.Add(-20 * time.Second)}
	require.True(t, sess.IsIdleByHeartbeat(now))
}
