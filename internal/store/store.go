// Package store holds the temporary deny-list of blocked identifiers.
package store

import (
	"context"
	"time"
)

// Entry is one blocked identifier. Entries key on the raw identifier string
// only, independent of the rule or scope that caused the block: an
// identifier denied under one scope is blocked everywhere until UnblockAt.
// That cross-scope behavior is intentional and awaiting product review.
type Entry struct {
	Identifier string    `json:"identifier"`
	UnblockAt  time.Time `json:"unblock_at"`
}

// BlockStore is the backend for block entries. Implementations must be safe
// for concurrent use.
type BlockStore interface {
	// Block records identifier as blocked for the given duration and
	// returns the resulting unblock time. Re-blocking overwrites.
	Block(ctx context.Context, identifier string, d time.Duration) (time.Time, error)

	// IsBlocked reports whether identifier is currently blocked, and until
	// when. Expired entries are treated as absent.
	IsBlocked(ctx context.Context, identifier string) (bool, time.Time, error)

	// Unblock removes the entry. Returns false if none existed.
	Unblock(ctx context.Context, identifier string) (bool, error)

	// Blocked lists all unexpired entries.
	Blocked(ctx context.Context) ([]Entry, error)

	// Cleanup purges expired entries and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)

	// Len returns the number of stored entries, expired ones included if
	// the backend keeps them until cleanup.
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// Backend names accepted in config and flags.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
