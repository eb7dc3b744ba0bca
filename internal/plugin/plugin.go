package plugin

import (
	"context"

	"github.com/dongwonkwak/ironpost/internal/events"
)

// Plugin is the capability set every long-lived Ironpost subsystem
// implements (spec.md §4.1). Concrete config is injected through each
// plugin's constructor (idiomatic Go dependency injection) rather than
// through an Init(config) method — the capability set's "init" step is
// represented here by Start itself doing first-run setup, since Go has no
// natural blob-config equivalent for a statically typed constructor.
//
// Start and Stop are the suspendable operations from the source design:
// in Go, suspension is simply "this call may block on I/O or a channel",
// so no separate future-returning adapter is needed — the method itself
// takes a context and may be cancelled at its next select point.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	// Dependencies lists the names of plugins that must already be
	// registered (not necessarily started) for this plugin to function.
	// The registry does not topologically sort on this — spec.md's
	// rationale is that wiring order is fixed by the channel fabric, not
	// by plugin names — but it is exposed for diagnostics and the CLI.
	Dependencies() []string

	// Start begins the plugin's background work. Must be idempotent with
	// respect to the lifecycle state machine: a second Start after Stop
	// returns an InvalidStateError rather than silently respawning. The log
	// pipeline is the exception: it accepts Start again from Stopped.
	Start(ctx context.Context) error

	// Stop halts background work. stop is expected to return promptly once
	// ctx's deadline (set by the registry's per-call timeout) expires.
	Stop(ctx context.Context) error

	// HealthCheck reports this plugin's current HealthStatus.
	HealthCheck(ctx context.Context) events.HealthStatus
}
