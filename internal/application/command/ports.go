// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Consumer-side interfaces, implemented in infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter admits requests per (scope, identifier) sliding window.
// Implementations fail open.
type RateLimiter interface {
	Allow(ctx context.Context, scope, identifier string, maxPerWindow int, window time.Duration) bool
}

// SuspicionRecorder counts anti-cheat signals by reason.
type SuspicionRecorder interface {
	Suspicious(reason string)
}

// SessionRecorder counts processed sessions by reward branch.
type SessionRecorder interface {
	SessionProcessed(branch string)
}

// Rate limit scopes.
const (
	ScopeAPI        = "api"
	ScopeGameSubmit = "game_submit"
)

// Reward branches reported to SessionRecorder.
const (
	BranchNew      = "new"
	BranchTraining = "training"
	BranchEmpty    = "empty"
)
