// Package executor is the isolation executor: bounded retry with linear
// backoff over the Docker-like capability set (spec.md §4.6).
package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
	"github.com/dongwonkwak/ironpost/internal/containerguard/policy"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// Config holds the executor's retry/timeout parameters.
type Config struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	AttemptTimeout time.Duration
}

// Executor retries isolation actions against the Docker-like API.
type Executor struct {
	log *zap.Logger
	api dockerapi.API
	cfg Config
}

// New constructs an Executor.
func New(log *zap.Logger, api dockerapi.API, cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Executor{log: log.Named("executor"), api: api, cfg: cfg}
}

// ValidateContainerID checks the hex/length invariant (spec.md §4.6, §8):
// exactly hex characters, length 1-64.
func ValidateContainerID(id string) error {
	if len(id) < 1 || len(id) > 64 {
		return ironerr.New(ironerr.KindInput, fmt.Sprintf("container id length %d out of range [1,64]", len(id)))
	}
	if _, err := hex.DecodeString(padOddHex(id)); err != nil {
		return ironerr.Wrap(ironerr.KindInput, "container id must be hex", err)
	}
	return nil
}

// padOddHex lets an odd-length hex string validate via hex.DecodeString,
// which requires an even-length input; the id's characters are still
// checked one-for-one, just validated in even-sized chunks.
func padOddHex(id string) string {
	if len(id)%2 == 0 {
		return id
	}
	return "0" + id
}

// Execute runs action against containerID with bounded retry and emits the
// terminal ActionEvent (spec.md §4.6).
func (e *Executor) Execute(ctx context.Context, containerID string, action policy.Action, traceID uuid.UUID) events.ActionEvent {
	if err := ValidateContainerID(containerID); err != nil {
		return events.NewActionEvent("container_guard.executor", toEventKind(action.Kind), containerID, false, err.Error(), traceID)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		err := e.attempt(attemptCtx, containerID, action)
		cancel()

		if err == nil {
			return events.NewActionEvent("container_guard.executor", toEventKind(action.Kind), containerID, true, "", traceID)
		}
		lastErr = err
		e.log.Warn("isolation attempt failed",
			zap.String("container_id", containerID), zap.Int("attempt", attempt), zap.Error(err))

		if attempt < e.cfg.MaxAttempts {
			select {
			case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = e.cfg.MaxAttempts
			}
		}
	}
	return events.NewActionEvent("container_guard.executor", toEventKind(action.Kind), containerID, false, lastErr.Error(), traceID)
}

// attempt performs one isolation attempt. For NetworkDisconnect, the full
// network list is re-executed on retry — idempotent against the
// underlying API, so safe (spec.md §4.6).
func (e *Executor) attempt(ctx context.Context, containerID string, action policy.Action) error {
	switch action.Kind {
	case policy.ActionStop:
		return e.api.Stop(ctx, containerID)
	case policy.ActionPause:
		return e.api.Pause(ctx, containerID)
	case policy.ActionNetworkDisconnect:
		var errs error
		for _, network := range action.Networks {
			if err := e.api.DisconnectNetwork(ctx, containerID, network); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("network %s: %w", network, err))
			}
		}
		return errs
	default:
		return ironerr.New(ironerr.KindAction, "action not applicable")
	}
}

func toEventKind(k policy.ActionKind) events.ActionKind {
	switch k {
	case policy.ActionPause:
		return events.ActionPause
	case policy.ActionStop:
		return events.ActionStop
	default:
		return events.ActionNetworkDisconnect
	}
}
