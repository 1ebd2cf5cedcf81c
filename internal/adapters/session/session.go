// Package session defines the capability interface through which the
// executor spawns, inspects, and tears down agent processes attached to
// terminal panes, with real, fake, and noop implementations sharing one
// interface.
package session

import (
	"context"
	"fmt"
	"sync"
)

// Adapter is the capability set the executor and session monitor need from
// whatever runs agent sessions: spawn, kill, send input, and capture a
// digest of recent output.
type Adapter interface {
	Spawn(ctx context.Context, id, command, cwd string, env map[string]string) error
	Kill(ctx context.Context, id string) error
	Send(ctx context.Context, id, input string) error
	Capture(ctx context.Context, id string) (output string, alive bool, exitCode int, err error)
}

// Noop is an Adapter that does nothing and reports every session as
// immediately exited cleanly; it is used when agent phases are not
// exercised (e.g. pure shell pipelines).
type Noop struct{}

func (Noop) Spawn(context.Context, string, string, string, map[string]string) error { return nil }
func (Noop) Kill(context.Context, string) error                                     { return nil }
func (Noop) Send(context.Context, string, string) error                             { return nil }
func (Noop) Capture(context.Context, string) (string, bool, int, error) {
	return "", false, 0, nil
}

// call records one invocation against a Fake, for test assertions.
type call struct {
	Method string
	ID     string
	Args   []string
}

// Fake is a scriptable in-memory Adapter for tests: callers seed expected
// Capture responses per id via SetOutput/SetExited, and every invocation is
// recorded for later assertion via Calls().
type Fake struct {
	mu      sync.Mutex
	calls   []call
	alive   map[string]bool
	output  map[string]string
	exit    map[string]int
	spawned map[string]bool
}

// NewFake returns an empty Fake adapter.
func NewFake() *Fake {
	return &Fake{
		alive:   map[string]bool{},
		output:  map[string]string{},
		exit:    map[string]int{},
		spawned: map[string]bool{},
	}
}

func (f *Fake) Spawn(_ context.Context, id, command, cwd string, env map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "spawn", ID: id, Args: []string{command, cwd}})
	f.spawned[id] = true
	f.alive[id] = true
	return nil
}

func (f *Fake) Kill(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "kill", ID: id})
	f.alive[id] = false
	return nil
}

func (f *Fake) Send(_ context.Context, id, input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "send", ID: id, Args: []string{input}})
	if !f.spawned[id] {
		return fmt.Errorf("session: fake: send to unspawned session %q", id)
	}
	return nil
}

func (f *Fake) Capture(_ context.Context, id string) (string, bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "capture", ID: id})
	return f.output[id], f.alive[id], f.exit[id], nil
}

// SetOutput seeds the output a subsequent Capture(id) call will return.
func (f *Fake) SetOutput(id, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output[id] = output
}

// SetExited marks id as no longer alive, with the given exit code.
func (f *Fake) SetExited(id string, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[id] = false
	f.exit[id] = exitCode
}

// Calls returns the method names invoked against this fake, in order, for
// assertions like require.Equal(t, []string{"spawn", "kill", "spawn"}, ...).
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}
