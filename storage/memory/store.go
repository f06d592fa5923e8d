// Package memory is an in-process storage backend, mainly for tests and
// local development. Nothing survives Close.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PipeOpsHQ/airos/storage"
)

const defaultLimit = 100

type Store struct {
	mu       sync.RWMutex
	traces   []storage.Trace
	byRun    map[string][]int
	settings map[string]string
	nextID   int64
	now      func() time.Time
}

type Option func(*Store)

// WithClock overrides the timestamp source for traces logged without one.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		byRun:    map[string][]int{},
		settings: map[string]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) LogTrace(ctx context.Context, trace storage.Trace) (storage.Trace, error) {
	if err := ctx.Err(); err != nil {
		return storage.Trace{}, err
	}
	prepared, err := storage.Prepare(trace, s.now())
	if err != nil {
		return storage.Trace{}, err
	}
	prepared = clone(prepared)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	prepared.ID = s.nextID
	s.traces = append(s.traces, prepared)
	s.byRun[prepared.RunID] = append(s.byRun[prepared.RunID], len(s.traces)-1)
	return clone(prepared), nil
}

// MirrorTrace stores a copy of a trace numbered by another store. Mirroring
// the same id twice replaces the earlier copy.
func (s *Store) MirrorTrace(ctx context.Context, trace storage.Trace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := trace.ID
	if id <= 0 {
		return fmt.Errorf("%w: mirrored trace needs an id", storage.ErrInvalidTrace)
	}
	prepared, err := storage.Prepare(trace, s.now())
	if err != nil {
		return err
	}
	prepared = clone(prepared)
	prepared.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.traces {
		if s.traces[i].ID == id && s.traces[i].RunID == prepared.RunID {
			s.traces[i] = prepared
			return nil
		}
	}
	if id > s.nextID {
		s.nextID = id
	}
	s.traces = append(s.traces, prepared)
	s.byRun[prepared.RunID] = append(s.byRun[prepared.RunID], len(s.traces)-1)
	return nil
}

func (s *Store) RunHistory(ctx context.Context, runID string) ([]storage.Trace, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byRun[runID]
	out := make([]storage.Trace, 0, len(idx))
	for _, i := range idx {
		out = append(out, clone(s.traces[i]))
	}
	return out, nil
}

func (s *Store) RunCost(ctx context.Context, runID string) (float64, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, fmt.Errorf("run_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, i := range s.byRun[runID] {
		total += s.traces[i].EstimatedCost
	}
	return total, nil
}

func (s *Store) ListTraces(ctx context.Context, query storage.ListQuery) ([]storage.Trace, error) {
	query = query.Normalize(defaultLimit)
	s.mu.RLock()
	matched := make([]storage.Trace, 0, len(s.traces))
	for _, t := range s.traces {
		if query.Matches(t) {
			matched = append(matched, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if query.Offset >= len(matched) {
		return []storage.Trace{}, nil
	}
	end := query.Offset + query.Limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]storage.Trace, 0, end-query.Offset)
	for _, t := range matched[query.Offset:end] {
		out = append(out, clone(t))
	}
	return out, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func clone(t storage.Trace) storage.Trace {
	t.InputState = append(json.RawMessage(nil), t.InputState...)
	t.OutputState = append(json.RawMessage(nil), t.OutputState...)
	return t
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Mirror = (*Store)(nil)
)
