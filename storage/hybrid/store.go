// Package hybrid pairs a durable trace store with a shared cache. The
// durable store is the source of truth for ids, history and cost; the cache
// receives a best-effort mirror so other processes can read recent traces
// and settings without touching the database file. Caches implementing
// storage.Mirror keep the durable ids; others number their copies
// themselves.
package hybrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PipeOpsHQ/airos/storage"
)

type Store struct {
	durable storage.Store
	cache   storage.Store
	logger  zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(durable, cache storage.Store, opts ...Option) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	s := &Store{
		durable: durable,
		cache:   cache,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (h *Store) LogTrace(ctx context.Context, trace storage.Trace) (storage.Trace, error) {
	logged, err := h.durable.LogTrace(ctx, trace)
	if err != nil {
		return storage.Trace{}, err
	}
	if h.cache != nil {
		if err := h.mirror(ctx, logged); err != nil {
			h.logger.Warn().Err(err).Str("run_id", logged.RunID).Int64("id", logged.ID).Msg("hybrid store cache mirror failed")
		}
	}
	return logged, nil
}

func (h *Store) mirror(ctx context.Context, trace storage.Trace) error {
	if m, ok := h.cache.(storage.Mirror); ok {
		return m.MirrorTrace(ctx, trace)
	}
	_, err := h.cache.LogTrace(ctx, trace)
	return err
}

func (h *Store) RunHistory(ctx context.Context, runID string) ([]storage.Trace, error) {
	return h.durable.RunHistory(ctx, runID)
}

func (h *Store) RunCost(ctx context.Context, runID string) (float64, error) {
	return h.durable.RunCost(ctx, runID)
}

func (h *Store) ListTraces(ctx context.Context, query storage.ListQuery) ([]storage.Trace, error) {
	return h.durable.ListTraces(ctx, query)
}

func (h *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if h.cache != nil {
		v, err := h.cache.GetSetting(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn().Err(err).Str("key", key).Msg("hybrid store cache GetSetting failed")
		}
	}

	v, err := h.durable.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if h.cache != nil {
		if err := h.cache.SetSetting(ctx, key, v); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("hybrid store cache backfill SetSetting failed")
		}
	}
	return v, nil
}

func (h *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := h.durable.SetSetting(ctx, key, value); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SetSetting(ctx, key, value); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("hybrid store cache SetSetting failed")
		}
	}
	return nil
}

func (h *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	return h.durable.ListSettings(ctx)
}

func (h *Store) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.durable != nil {
		if err := h.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ storage.Store = (*Store)(nil)
