// Package runtime implements the single-threaded cooperative main loop: it
// consumes events from the IPC protocol, the scheduler, and the session
// monitor, advances the pipeline state machine, and executes the resulting
// effects.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/coordination"
	"github.com/alfredjeanlab/oj/internal/effect"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/executor"
	"github.com/alfredjeanlab/oj/internal/id"
	"github.com/alfredjeanlab/oj/internal/metrics"
	"github.com/alfredjeanlab/oj/internal/monitor"
	"github.com/alfredjeanlab/oj/internal/protocol"
	"github.com/alfredjeanlab/oj/internal/runbook"
	"github.com/alfredjeanlab/oj/internal/scheduler"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/alfredjeanlab/oj/internal/statemachine"
	"github.com/alfredjeanlab/oj/internal/wal"
)

// maxConcurrentSessionChecks bounds the errgroup fan-out used when a single
// scheduler poll returns more than one fired session-check timer (e.g.
// several agent phases across different pipelines happen to share a tick).
// Each check only touches its own pipeline/session records, guarded by the
// WAL store's and scheduler's own locks, so running them concurrently is
// safe; the cap just keeps one slow shell/process call from serializing
// behind an unrelated one.
const maxConcurrentSessionChecks = 8

// DefaultIdleThreshold is the idle_threshold applied to a newly created
// session when the runbook does not override it.
const DefaultIdleThreshold = 5 * time.Minute

// Runtime owns the supervisor's entire mutable state reachable from the main
// loop: the WAL/state store, the scheduler, the runbook registry, the
// executor, the session monitor, and the coordination manager.
type Runtime struct {
	wal      *wal.Store
	sched    *scheduler.Scheduler
	runbooks *runbook.Registry
	exec     *executor.Executor
	mon      *monitor.Monitor
	coord    *coordination.Manager
	maint    *coordination.MaintenanceTask
	clk      clock.Clock
	ids      id.Generator

	events    chan event.Event
	startedAt time.Time

	// workerMu guards workerQueue, the FIFO of pipeline ids waiting for a
	// free slot in each named worker pool. Worker records themselves live in
	// materialized state (ephemeral, like sessions - see state.PutWorker);
	// the queue is runtime-only and never persisted, so a restart drops it
	// and any worker-gated pipeline left in its initial phase must be
// re-submitted.
	workerMu    sync.Mutex
	workerQueue map[string][]string
}

// New builds a Runtime over its collaborators and arms the recurring
// maintenance sweep timer.
func New(store *wal.Store, sched *scheduler.Scheduler, runbooks *runbook.Registry, exec *executor.Executor, mon *monitor.Monitor, coord *coordination.Manager, maint *coordination.MaintenanceTask, clk clock.Clock, ids id.Generator) *Runtime {
	r := &Runtime{
		wal:      store,
		sched:    sched,
		runbooks: runbooks,
		exec:     exec,
		mon:      mon,
		coord:    coord,
		maint:    maint,
		clk:      clk,
		ids:         ids,
		events:      make(chan event.Event, 256),
		workerQueue: map[string][]string{},
	}
	r.sched.ScheduleRepeating("maintenance", clk.Now().Add(maint.Interval()), maint.Interval(), scheduler.KindMaintenanceTick)
	return r
}

// Submit enqueues an event for the main loop to process, blocking only if
// the queue is full or ctx is cancelled first.
func (r *Runtime) Submit(ctx context.Context, ev event.Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the main loop until ctx is cancelled. On return, every live
// session has been sent a kill effect and the WAL has been flushed by the
// last Append (Append fsyncs unconditionally, so no separate flush step is
// needed here).
func (r *Runtime) Run(ctx context.Context) error {
	r.startedAt = r.clk.Now()

	timer := time.NewTimer(nextFireDelay(r.sched, r.clk))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(context.Background())
			return nil

		case ev := <-r.events:
			if err := r.dispatch(ctx, ev); err != nil {
				slog.Error("runtime: dispatch failed", "error", err)
			}
			resetTimer(timer, nextFireDelay(r.sched, r.clk))

		case <-timer.C:
			r.handleBatch(ctx, r.sched.Poll(r.clk.Now()))
			resetTimer(timer, nextFireDelay(r.sched, r.clk))
		}
	}
}

// handleBatch runs every scheduler item fired in one poll. Session-check
// timers are independent of each other (each touches only its own
// pipeline/session records) and are fanned out through an errgroup bounded
// by maxConcurrentSessionChecks; everything else runs inline, in poll order,
// since maintenance and phase-timeout handling mutate shared coordination
// state.
func (r *Runtime) handleBatch(ctx context.Context, items []scheduler.Item) {
	var sessionChecks, rest []scheduler.Item
	for _, item := range items {
		metrics.SchedulerFiresTotal.WithLabelValues(string(item.Kind)).Inc()
		if item.Kind == scheduler.KindSessionCheck {
			sessionChecks = append(sessionChecks, item)
		} else {
			rest = append(rest, item)
		}
	}

	if len(sessionChecks) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentSessionChecks)
		for _, item := range sessionChecks {
			item := item
			g.Go(func() error {
				if err := r.handleTimer(gctx, item); err != nil {
					slog.Error("runtime: session check failed", "id", item.ID, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, item := range rest {
		if err := r.handleTimer(ctx, item); err != nil {
			slog.Error("runtime: timer handling failed", "id", item.ID, "error", err)
		}
	}
}

func nextFireDelay(sched *scheduler.Scheduler, clk clock.Clock) time.Duration {
	at, ok := sched.NextFireTime()
	if !ok {
		return time.Minute
	}
	d := at.Sub(clk.Now())
	if d < 0 {
		return 0
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (r *Runtime) shutdown(ctx context.Context) {
	for _, sess := range r.wal.State().Snapshot().Sessions {
		if sess.State == state.SessionDead {
			continue
		}
		if _, err := r.exec.Execute(ctx, effect.Kill(sess.ID)); err != nil {
			slog.Error("runtime: shutdown kill failed", "session", sess.ID, "error", err)
		}
	}
	slog.Info("runtime: shutdown complete")
}

// handleTimer routes one fired scheduler entry to its handler.
func (r *Runtime) handleTimer(ctx context.Context, item scheduler.Item) error {
	switch item.Kind {
	case scheduler.KindSessionCheck:
		return r.tickSessionCheck(ctx, item.ID)

	case scheduler.KindMaintenanceTick:
		for _, ev := range r.maint.Tick(r.coord) {
			if err := r.dispatch(ctx, ev); err != nil {
				return err
			}
		}
		metrics.LocksStale.Set(float64(coordination.CollectStats(r.coord, r.clk).Stale))
		return nil

	case scheduler.KindPhaseTimeout:
		pipelineID := strings.TrimPrefix(item.ID, "timeout:")
		return r.dispatch(ctx, event.AgentError(pipelineID, "timeout"))

	default:
		return r.dispatch(ctx, event.Timer(item.ID))
	}
}

// dispatch routes one event to the pipeline it concerns and advances its
// state machine, or handles the event directly when it names no pipeline.
func (r *Runtime) dispatch(ctx context.Context, ev event.Event) error {
	switch ev.Kind {
	case event.KindCommandInvoked:
		if cmd, ok := r.runbooks.Current().Commands[ev.Command]; ok {
			return r.runCommand(ctx, ev.Command, cmd, ev.Args)
		}
		_, err := r.StartPipeline(ctx, ev.Command, ev.Args)
		return err

	case event.KindCustom:
		slog.Debug("runtime: custom event", "name", ev.Name)
		return nil

	case event.KindWorkerWake:
		return r.dispatchWorkerPool(ctx, ev.Worker)
	}

	pipelineID := ev.PipelineID
	if pipelineID == "" && ev.SessionID != "" {
		if sess, ok := r.wal.State().GetSession(ev.SessionID); ok {
			pipelineID = sess.PipelineID
		}
	}
	if pipelineID == "" {
		return nil
	}

	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok {
		return nil
	}

	effects := statemachine.PipelineTransition(p, ev, r.clk, r.runbooks.Current())
	if err := r.executeEffects(ctx, effects); err != nil {
		return err
	}
	return r.onPhaseStatusChanged(ctx, pipelineID)
}

// runCommand executes a named top-level [command.X] shell invocation. Unlike
// a pipeline phase, it is fire-and-forget: it isn't bound to any pipeline's
// state machine, so its exit code only reaches the log.
func (r *Runtime) runCommand(ctx context.Context, name string, cmd runbook.CommandDef, args map[string]string) error {
	command := runbook.Render(cmd.Run, args)
	ev, err := r.exec.Execute(ctx, effect.Shell("", name, command, "", nil))
	if err != nil {
		return err
	}
	if ev != nil {
		slog.Info("runtime: command finished", "command", name, "exit_code", ev.ExitCode)
	}
	return nil
}

// executeEffects interprets each effect in order; an effect that produces an
// event (Shell, Emit) routes that event back through dispatch before the
// next effect runs.
func (r *Runtime) executeEffects(ctx context.Context, effects []effect.Effect) error {
	for _, eff := range effects {
		ev, err := r.exec.Execute(ctx, eff)
		if err != nil {
			return err
		}
		if ev != nil {
			if err := r.dispatch(ctx, *ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// onPhaseStatusChanged follows up a phase-status write: a Completed status
// advances the pipeline to its next phase; a terminal phase cancels any
// outstanding session-check timer.
func (r *Runtime) onPhaseStatusChanged(ctx context.Context, pipelineID string) error {
	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok {
		return nil
	}
	if p.Phase == "done" || p.Phase == "failed" {
		r.sched.Cancel(monitor.TimerID(pipelineID))
		return r.cancelPhaseTimeout(ctx, pipelineID)
	}
	if p.PhaseStatus != wal.PhaseCompleted {
		return nil
	}

	next := statemachine.NextPhaseAfterCompletion(p, r.runbooks.Current())
	if _, err := r.exec.Execute(ctx, effect.Persist(wal.NewPipelineTransition(pipelineID, next))); err != nil {
		return err
	}
	r.sched.Cancel(monitor.TimerID(pipelineID))
	if err := r.cancelPhaseTimeout(ctx, pipelineID); err != nil {
		return err
	}
	return r.enterPhase(ctx, pipelineID, next)
}

// cancelPhaseTimeout cancels pipelineID's current agent phase total-timeout
// timer, if one was armed. A no-op when none was set (shell phases, or
// agents declaring no timeout).
func (r *Runtime) cancelPhaseTimeout(ctx context.Context, pipelineID string) error {
	_, err := r.exec.Execute(ctx, effect.CancelTimer(timeoutTimerID(pipelineID)))
	return err
}

// StartPipeline materializes a new pipeline instance from a named pipeline
// definition and enters its first phase.
func (r *Runtime) StartPipeline(ctx context.Context, pipelineKind string, inputs map[string]string) (string, error) {
	pd, ok := r.runbooks.Current().Pipelines[pipelineKind]
	if !ok {
		return "", fmt.Errorf("runtime: unknown pipeline %q", pipelineKind)
	}
	initial := "init"
	if len(pd.Phases) > 0 {
		initial = pd.Phases[0].Name
	}
	inputs = pd.ResolveInputs(inputs)

	pipelineID := r.ids.New()
	op := wal.NewPipelineCreate(pipelineID, pipelineKind, pipelineKind, inputs, initial)
	if _, err := r.exec.Execute(ctx, effect.Persist(op)); err != nil {
		return "", err
	}

	if pd.Workspace {
		vars := make(map[string]string, len(inputs)+1)
		for k, v := range inputs {
			vars[k] = v
		}
		vars["id"] = pipelineID
		branch := runbook.Render(pd.Branch, vars)
		if branch == "" {
			branch = "oj/" + pipelineID
		}
		if _, err := r.exec.Execute(ctx, effect.WorkspaceCreate(pipelineID, branch)); err != nil {
			return "", err
		}
	}

	if pd.Worker != "" {
		if err := r.enqueueForWorker(ctx, pd.Worker, pipelineID); err != nil {
			return "", err
		}
		return pipelineID, nil
	}

	if err := r.enterPhase(ctx, pipelineID, initial); err != nil {
		return "", err
	}
	return pipelineID, nil
}

// ensureWorkerPool lazily materializes concurrency Stopped workers for a
// newly-referenced pool, started into Idle so they're immediately available.
func (r *Runtime) ensureWorkerPool(pool string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		name := fmt.Sprintf("%s-%d", pool, i)
		if _, ok := r.wal.State().GetWorker(name); !ok {
			r.wal.State().PutWorker(statemachine.WorkerStart(state.Worker{Name: name, Concurrency: 1}))
		}
	}
}

// enqueueForWorker queues pipelineID behind pool and attempts to dispatch it
// (and anything else already waiting) onto an idle worker right away.
func (r *Runtime) enqueueForWorker(ctx context.Context, pool, pipelineID string) error {
	wd, ok := r.runbooks.Current().Workers[pool]
	if !ok {
		return fmt.Errorf("runtime: pipeline references unknown worker pool %q", pool)
	}
	r.ensureWorkerPool(pool, wd.Concurrency)

	r.workerMu.Lock()
	r.workerQueue[pool] = append(r.workerQueue[pool], pipelineID)
	r.workerMu.Unlock()

	return r.dispatchWorkerPool(ctx, pool)
}

// dispatchWorkerPool assigns queued pipelines in pool to idle workers until
// either runs out. Each assignment enters the pipeline's first phase.
func (r *Runtime) dispatchWorkerPool(ctx context.Context, pool string) error {
	for {
		r.workerMu.Lock()
		queue := r.workerQueue[pool]
		if len(queue) == 0 {
			r.workerMu.Unlock()
			return nil
		}
		worker, ok := r.findIdleWorker(pool)
		if !ok {
			r.workerMu.Unlock()
			return nil
		}
		pipelineID := queue[0]
		r.workerQueue[pool] = queue[1:]
		r.workerMu.Unlock()

		r.wal.State().PutWorker(statemachine.WorkerTakePipeline(worker, pipelineID))

		p, ok := r.wal.State().GetPipeline(pipelineID)
		if !ok {
			continue
		}
		if err := r.enterPhase(ctx, pipelineID, p.Phase); err != nil {
			return err
		}
	}
}

// findIdleWorker returns the first available worker belonging to pool.
func (r *Runtime) findIdleWorker(pool string) (state.Worker, bool) {
	prefix := pool + "-"
	for _, w := range r.wal.State().Snapshot().Workers {
		if strings.HasPrefix(w.Name, prefix) && w.IsAvailable() {
			return w, true
		}
	}
	return state.Worker{}, false
}

// releaseWorkerFor frees whichever worker in pool was processing
// pipelineID, if any, and gives its pool a chance to pick up the next
// queued pipeline.
func (r *Runtime) releaseWorkerFor(ctx context.Context, pool, pipelineID string) error {
	for _, w := range r.wal.State().Snapshot().Workers {
		if w.PipelineID == pipelineID {
			r.wal.State().PutWorker(statemachine.WorkerFinish(w))
			return r.dispatchWorkerPool(ctx, pool)
		}
	}
	return nil
}

// enterPhase dispatches the effects of entering phaseName: launching a shell
// command, spawning an agent session, or recording terminal completion.
func (r *Runtime) enterPhase(ctx context.Context, pipelineID, phaseName string) error {
	if phaseName == "done" {
		r.sched.Cancel(monitor.TimerID(pipelineID))
		if err := r.cancelPhaseTimeout(ctx, pipelineID); err != nil {
			return err
		}
		if err := r.teardownWorkspace(ctx, pipelineID); err != nil {
			return err
		}
		if err := r.releaseWorkerIfPooled(ctx, pipelineID); err != nil {
			return err
		}
		_, err := r.exec.Execute(ctx, effect.Persist(wal.NewPhaseStatusUpdate(pipelineID, wal.PhaseCompleted)))
		return err
	}
	if phaseName == "failed" {
		r.sched.Cancel(monitor.TimerID(pipelineID))
		if err := r.cancelPhaseTimeout(ctx, pipelineID); err != nil {
			return err
		}
		if err := r.teardownWorkspace(ctx, pipelineID); err != nil {
			return err
		}
		return r.releaseWorkerIfPooled(ctx, pipelineID)
	}

	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok {
		return fmt.Errorf("runtime: enter phase %q: pipeline %q not found", phaseName, pipelineID)
	}
	pd, ok := r.runbooks.Current().Pipelines[p.Kind]
	if !ok {
		return fmt.Errorf("runtime: enter phase: unknown pipeline kind %q", p.Kind)
	}
	ph, ok := pd.PhaseByName(phaseName)
	if !ok {
		return fmt.Errorf("runtime: enter phase: pipeline %q has no phase %q", p.Kind, phaseName)
	}

	if ph.Agent != "" {
		return r.enterAgentPhase(ctx, p, ph)
	}
	return r.enterShellPhase(ctx, p, ph)
}

// releaseWorkerIfPooled frees pipelineID's worker slot when its pipeline
// kind declares a worker pool; a no-op otherwise.
func (r *Runtime) releaseWorkerIfPooled(ctx context.Context, pipelineID string) error {
	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok {
		return nil
	}
	pd, ok := r.runbooks.Current().Pipelines[p.Kind]
	if !ok || pd.Worker == "" {
		return nil
	}
	return r.releaseWorkerFor(ctx, pd.Worker, pipelineID)
}

// teardownWorkspace removes the pipeline's worktree, if it ever got one.
func (r *Runtime) teardownWorkspace(ctx context.Context, pipelineID string) error {
	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok || p.WorkspacePath == "" {
		return nil
	}
	_, err := r.exec.Execute(ctx, effect.WorkspaceDelete(pipelineID, p.WorkspacePath))
	return err
}

func (r *Runtime) enterShellPhase(ctx context.Context, p state.Pipeline, ph runbook.PhaseDef) error {
	command := runbook.Render(ph.Shell, p.Inputs)
	ev, err := r.exec.Execute(ctx, effect.Shell(p.ID, ph.Name, command, p.WorkspacePath, nil))
	if err != nil {
		return err
	}
	if ev != nil {
		return r.dispatch(ctx, *ev)
	}
	return nil
}

func (r *Runtime) enterAgentPhase(ctx context.Context, p state.Pipeline, ph runbook.PhaseDef) error {
	agent, ok := r.runbooks.Current().Agents[ph.Agent]
	if !ok {
		return fmt.Errorf("runtime: enter phase: unknown agent %q", ph.Agent)
	}

	env := renderedEnv(agent.Env, p.Inputs)
	prompt := runbook.Render(agent.Prompt, p.Inputs)
	env["OJ_PROMPT"] = prompt
	env["OJ_PIPELINE"] = p.ID
	env["OTTER_PIPELINE"] = p.ID
	env["OTTER_TASK"] = p.Kind
	env["OTTER_PHASE"] = ph.Name

	cwd := p.WorkspacePath
	if phaseCwd := runbook.Render(agent.Cwd, p.Inputs); phaseCwd != "" {
		cwd = phaseCwd
	}
	command := runbook.Render(agent.Run, p.Inputs)

	if _, err := r.exec.Execute(ctx, effect.Persist(wal.NewSessionCreate(p.ID, p.ID))); err != nil {
		return err
	}
	if _, err := r.exec.Execute(ctx, effect.Spawn(p.ID, p.Name, command, env, cwd)); err != nil {
		return err
	}

	sess, ok := r.wal.State().GetSession(p.ID)
	if ok {
		sess.IdleThreshold = DefaultIdleThreshold
		r.wal.State().PutSession(sess)
	}

	if agent.Timeout > 0 {
		if _, err := r.exec.Execute(ctx, effect.SetTimer(timeoutTimerID(p.ID), agent.Timeout)); err != nil {
			return err
		}
	}

	r.sched.ScheduleRepeating(monitor.TimerID(p.ID), r.clk.Now().Add(monitor.Interval), monitor.Interval, scheduler.KindSessionCheck)
	return nil
}

// timeoutTimerID returns the total-timeout timer id for a pipeline's current
// agent phase, matching the "timeout:" prefix handleTimer strips off when
// the timer fires.
func timeoutTimerID(pipelineID string) string { return "timeout:" + pipelineID }

func renderedEnv(env map[string]string, inputs map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = runbook.Render(v, inputs)
	}
	return out
}

// tickSessionCheck evaluates one session-check timer firing.
func (r *Runtime) tickSessionCheck(ctx context.Context, timerID string) error {
	pipelineID, ok := monitor.ParseTimerID(timerID)
	if !ok {
		return nil
	}
	p, ok := r.wal.State().GetPipeline(pipelineID)
	if !ok {
		return nil
	}
	sess, ok := r.wal.State().GetSession(pipelineID)
	if !ok {
		return nil
	}
	pd, ok := r.runbooks.Current().Pipelines[p.Kind]
	if !ok {
		return nil
	}
	ph, ok := pd.PhaseByName(p.Phase)
	if !ok || ph.Agent == "" {
		return nil
	}
	agent, ok := r.runbooks.Current().Agents[ph.Agent]
	if !ok {
		return nil
	}

	command := runbook.Render(agent.Run, p.Inputs)
	env := renderedEnv(agent.Env, p.Inputs)
	env["OJ_PROMPT"] = runbook.Render(agent.Prompt, p.Inputs)

	res, err := r.mon.Tick(ctx, r.clk, monitor.Tick{
		PipelineID:   pipelineID,
		PipelineName: p.Name,
		Phase:        p.Phase,
		Session:      sess,
		Agent:        agent,
		Command:      command,
		Cwd:          p.WorkspacePath,
		Env:          env,
	})
	if err != nil {
		return err
	}

	r.wal.State().PutSession(res.Session)
	if err := r.executeEffects(ctx, res.Effects); err != nil {
		return err
	}
	if res.Rearm {
		r.sched.Schedule(timerID, r.clk.Now().Add(monitor.Interval), scheduler.KindSessionCheck)
	}
	return r.onPhaseStatusChanged(ctx, pipelineID)
}

// Status reports a point-in-time snapshot for the IPC Status query.
func (r *Runtime) Status() protocol.StatusPayload {
	snap := r.wal.State().Snapshot()
	active := 0
	for _, p := range snap.Pipelines {
		if p.Phase != "done" && p.Phase != "failed" {
			active++
		}
	}
	sessionsActive := 0
	for _, s := range snap.Sessions {
		if s.State != state.SessionDead {
			sessionsActive++
		}
	}
	metrics.PipelinesActive.Set(float64(active))
	metrics.SessionsActive.Set(float64(sessionsActive))
	stats := coordination.CollectStats(r.coord, r.clk)

	return protocol.StatusPayload{
		UptimeSecs:      int64(r.clk.Now().Sub(r.startedAt).Seconds()),
		PipelinesActive: active,
		SessionsActive:  sessionsActive,
		LocksHeld:       stats.Held,
		LocksStale:      stats.Stale,
	}
}

// Checkpoint takes a WAL snapshot on request. It is the only path that
// snapshots: no snapshot is taken on a schedule or after a number of
// entries. A client-requested checkpoint is
// useful right before a risky runbook edit or daemon upgrade.
func (r *Runtime) Checkpoint() error {
	return r.wal.Snapshot(r.ids.New())
}

// PipelineSummaries projects every pipeline into its list-view summary.
func (r *Runtime) PipelineSummaries() []protocol.PipelineSummary {
	list := r.wal.State().ListPipelines()
	out := make([]protocol.PipelineSummary, 0, len(list))
	for _, p := range list {
		out = append(out, protocol.PipelineSummary{ID: p.ID, Name: p.Name, Phase: p.Phase, Status: string(p.PhaseStatus)})
	}
	return out
}

// PipelineDetail projects one pipeline's full state, resolved by exact id or
// unique prefix.
func (r *Runtime) PipelineDetail(idOrPrefix string) (protocol.PipelineDetail, bool) {
	p, ok := r.wal.State().GetPipeline(idOrPrefix)
	if !ok {
		return protocol.PipelineDetail{}, false
	}
	return protocol.PipelineDetail{
		ID:            p.ID,
		Name:          p.Name,
		Kind:          p.Kind,
		Phase:         p.Phase,
		Status:        string(p.PhaseStatus),
		SessionID:     p.SessionID,
		WorkspacePath: p.WorkspacePath,
		Inputs:        p.Inputs,
		Outputs:       p.Outputs,
		Error:         p.Error,
	}, true
}
