// Package statemachine implements the pure (state, event, clock) → (state',
// []Effect) transition functions for pipelines, sessions, and workers.
package statemachine

import (
	"fmt"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/alfredjeanlab/oj/internal/wal"
)

// PipelineTransition applies ev to p and returns the pipeline's updated
// fields (as operations the caller should Persist) plus any additional
// effects. The function never mutates p directly - state mutation happens
// only through the executor's Persist path, per the single-writer rule.
func PipelineTransition(p state.Pipeline, ev event.Event, clk clock.Clock, rb runbook.Runbook) []effect.Effect {
	switch ev.Kind {
	case event.KindSessionStarted:
		if ev.SessionID != p.SessionID {
			return nil
		}
		return []effect.Effect{
			effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseRunning)),
		}

	case event.KindSessionExited:
		if ev.ExitCode == 0 {
			return []effect.Effect{
				effect.Persist(wal.NewSessionDelete(p.SessionID)),
				effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseCompleted)),
			}
		}
		return []effect.Effect{
			effect.Persist(wal.NewSessionDelete(p.SessionID)),
			effect.Persist(wal.NewPipelineTransition(p.ID, "failed")),
			effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseFailed)),
		}

	case event.KindAgentDone:
		return []effect.Effect{
			effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseCompleted)),
		}

	case event.KindAgentError:
		onFail := onFailPhase(p, rb)
		return []effect.Effect{
			effect.Persist(wal.NewPipelineTransition(p.ID, onFail)),
			effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseFailed)),
		}

	case event.KindShellCompleted:
		if ev.PipelineID != p.ID || ev.Phase != p.Phase {
			return nil
		}
		if ev.ExitCode == 0 {
			return []effect.Effect{
				effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseCompleted)),
			}
		}
		onFail := onFailPhase(p, rb)
		return []effect.Effect{
			effect.Persist(wal.NewPipelineTransition(p.ID, onFail)),
			effect.Persist(wal.NewPhaseStatusUpdate(p.ID, wal.PhaseFailed)),
		}
	}
	return nil
}

// onFailPhase looks up the current phase's declared on_fail target,
// defaulting to the built-in "failed" sink when none is declared.
func onFailPhase(p state.Pipeline, rb runbook.Runbook) string {
	pd, ok := rb.Pipelines[p.Kind]
	if !ok {
		return "failed"
	}
	ph, ok := pd.PhaseByName(p.Phase)
	if !ok || ph.OnFail == "" {
		return "failed"
	}
	return ph.OnFail
}

// NextPhaseAfterCompletion resolves the phase a pipeline should enter next
// after its current phase completes: the declared next phase if set,
// otherwise the next phase in declaration order, otherwise "done" when the
// current phase is the pipeline's last.
func NextPhaseAfterCompletion(p state.Pipeline, rb runbook.Runbook) string {
	pd, ok := rb.Pipelines[p.Kind]
	if !ok {
		return "done"
	}
	ph, ok := pd.PhaseByName(p.Phase)
	if !ok {
		return "done"
	}
	if ph.Next != "" {
		return ph.Next
	}
	if next, ok := pd.NextPhase(p.Phase); ok {
		return next.Name
	}
	return "done"
}

// ValidatePhase reports an error if phase is not declared in the pipeline
// definition and is not one of the built-in terminal sinks.
func ValidatePhase(kind, phase string, rb runbook.Runbook) error {
	if phase == "done" || phase == "failed" {
		return nil
	}
	pd, ok := rb.Pipelines[kind]
	if !ok {
		return fmt.Errorf("statemachine: unknown pipeline kind %q", kind)
	}
	if _, ok := pd.PhaseByName(phase); !ok {
		return fmt.Errorf("statemachine: pipeline %q has no phase %q", kind, phase)
	}
	return nil
}
