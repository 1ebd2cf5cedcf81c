package statemachine

import (
	"strconv"
	"time"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/state"
)

// SessionHeartbeat is the input to the session machine's per-tick
// evaluation: the freshly captured output digest and whether the process is
// still alive.
type SessionHeartbeat struct {
	OutputHash uint64
	HasOutput  bool
	Alive      bool
	ExitCode   int
}

// SessionResult is the outcome of evaluating one heartbeat against a
// session's current recorded state.
type SessionResult struct {
	Next    state.Session
	Effects []effect.Effect
}

// EvaluateHeartbeat implements the Session machine's transition matrix:
// Starting -> Running on first confirmed output or liveness, Running -> Idle
// after idle_threshold with no new output hash, Idle -> Running on fresh
// output, and any state -> Dead on process exit.
func EvaluateHeartbeat(sess state.Session, hb SessionHeartbeat, clk clock.Clock) SessionResult {
	now := clk.Now()

	if !hb.Alive {
		reason := "exited cleanly"
		if hb.ExitCode != 0 {
			reason = "exit code " + strconv.Itoa(hb.ExitCode)
		}
		next := sess
		next.State = state.SessionDead
		next.DeadReason = reason
		return SessionResult{
			Next:    next,
			Effects: []effect.Effect{effect.Emit(event.Custom("session:dead", nil))},
		}
	}

	switch sess.State {
	case state.SessionStarting:
		next := sess
		next.State = state.SessionRunning
		next.LastHeartbeat = now
		if hb.HasOutput {
			next.LastOutputHash = hb.OutputHash
		}
		return SessionResult{
			Next:    next,
			Effects: []effect.Effect{effect.Emit(event.SessionStarted(sess.ID))},
		}

	case state.SessionRunning:
		if hb.HasOutput && hb.OutputHash != sess.LastOutputHash {
			next := sess
			next.LastOutputHash = hb.OutputHash
			next.LastHeartbeat = now
			return SessionResult{Next: next}
		}
		next := sess
		if next.IsIdleByHeartbeat(now) {
			next.State = state.SessionIdle
			next.IdleSince = now
			return SessionResult{
				Next:    next,
				Effects: []effect.Effect{effect.Emit(event.Custom("session:idle", nil))},
			}
		}
		return SessionResult{Next: next}

	case state.SessionIdle:
		if hb.HasOutput && hb.OutputHash != sess.LastOutputHash {
			next := sess
			next.State = state.SessionRunning
			next.LastOutputHash = hb.OutputHash
			next.LastHeartbeat = now
			next.IdleSince = time.Time{}
			return SessionResult{
				Next:    next,
				Effects: []effect.Effect{effect.Emit(event.Custom("session:active", nil))},
			}
		}
		return SessionResult{Next: sess}
	}

	return SessionResult{Next: sess}
}
