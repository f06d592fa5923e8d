// Package storage persists one immutable trace per wrapped-node invocation
// plus a small table of mutable settings.
//
// Backends live in subpackages (memory, sqlite, redis); factory selects one
// from configuration. Every backend must tolerate concurrent LogTrace calls
// from independent invocations without losing or interleaving records.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrInvalidTrace = errors.New("storage: invalid trace")
)

type ListQuery struct {
	RunID  string
	NodeID string
	Status Status
	Limit  int
	Offset int
}

type Store interface {
	// LogTrace appends trace and returns it with its assigned id.
	LogTrace(ctx context.Context, trace Trace) (Trace, error)
	// RunHistory returns the run's traces in insertion order.
	RunHistory(ctx context.Context, runID string) ([]Trace, error)
	// RunCost sums estimated_cost over the run's committed traces.
	RunCost(ctx context.Context, runID string) (float64, error)
	// ListTraces returns traces newest first.
	ListTraces(ctx context.Context, query ListQuery) ([]Trace, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	Close() error
}

// Mirror is implemented by stores that can hold copies of traces numbered
// elsewhere. MirrorTrace keeps trace.ID instead of assigning a new one.
type Mirror interface {
	MirrorTrace(ctx context.Context, trace Trace) error
}
