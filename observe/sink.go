package observe

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	_ = event
	return nil
}

type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiSink{sinks: filtered}
}

// Emit delivers to every sink and returns the first error.
func (m *MultiSink) Emit(ctx context.Context, event Event) error {
	if m == nil {
		return nil
	}
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ErrSinkClosed is returned by AsyncSink.Emit after Close.
var ErrSinkClosed = errors.New("observe: sink closed")

type AsyncSink struct {
	downstream Sink
	queue      chan Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncSink(downstream Sink, buffer int) *AsyncSink {
	if downstream == nil {
		downstream = NoopSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	as := &AsyncSink{
		downstream: downstream,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go as.loop()
	return as
}

func (s *AsyncSink) Emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	event.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- event:
		return nil
	default:
		// Drop on pressure; node invocations never block on observers.
		return nil
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (s *AsyncSink) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for event := range s.queue {
		_ = s.downstream.Emit(context.Background(), event)
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	event.Normalize()

	var e *zerolog.Event
	switch event.Status {
	case StatusFailed:
		e = s.logger.Warn()
	case StatusStarted:
		e = s.logger.Debug()
	default:
		e = s.logger.Info()
	}
	e = e.Str("event_id", event.ID).
		Str("kind", string(event.Kind)).
		Str("status", string(event.Status)).
		Str("run_id", event.RunID).
		Str("node_id", event.NodeID)
	if event.Attempt > 0 {
		e = e.Int("attempt", event.Attempt)
	}
	if event.DurationMs > 0 {
		e = e.Int64("duration_ms", event.DurationMs)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if len(event.Attributes) > 0 {
		e = e.Fields(event.Attributes)
	}
	e.Msg(event.Message)
	return nil
}
