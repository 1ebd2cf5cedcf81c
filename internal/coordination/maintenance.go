package coordination

import (
	"time"

	"github.com/alfredjeanlab/oj/internal/clock"
	"github.com/alfredjeanlab/oj/internal/event"
)

// MaintenanceConfig controls the periodic sweep over coordination state.
type MaintenanceConfig struct {
	Interval      time.Duration
	ReclaimStale  bool
	EmitWarnings  bool
}

// DefaultMaintenanceConfig matches the donor's defaults: a 30-second sweep
// that both warns about and reclaims stale locks.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{Interval: 30 * time.Second, ReclaimStale: true, EmitWarnings: true}
}

// MaintenanceTask runs one sweep per firing of the scheduler's
// MaintenanceTick entry.
type MaintenanceTask struct {
	config MaintenanceConfig
	clock  clock.Clock
}

// NewMaintenanceTask builds a MaintenanceTask with the given config and
// clock.
func NewMaintenanceTask(config MaintenanceConfig, clk clock.Clock) *MaintenanceTask {
	return &MaintenanceTask{config: config, clock: clk}
}

// Interval returns the configured sweep interval.
func (t *MaintenanceTask) Interval() time.Duration { return t.config.Interval }

// Tick runs a single maintenance cycle against manager, returning every
// event produced (LockStale warnings followed by LockReleased reclaims).
func (t *MaintenanceTask) Tick(manager *Manager) []event.Event {
	var events []event.Event
	if t.config.EmitWarnings {
		events = append(events, manager.Tick(t.clock)...)
	}
	if t.config.ReclaimStale {
		events = append(events, manager.ReclaimStale(t.clock)...)
	}
	return events
}
