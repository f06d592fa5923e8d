package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestEventNormalize(t *testing.T) {
	var e Event
	e.Normalize()
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, KindCustom, e.Kind)
	assert.NotNil(t, e.Attributes)

	var nilEvent *Event
	nilEvent.Normalize()
}

func TestNewMultiSink(t *testing.T) {
	assert.IsType(t, NoopSink{}, NewMultiSink(nil, nil))

	only := &recorder{}
	assert.Same(t, only, NewMultiSink(nil, only))

	a, b := &recorder{}, &recorder{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("boom") })
	multi := NewMultiSink(a, failing, b)

	err := multi.Emit(context.Background(), Event{Kind: KindNode})
	assert.EqualError(t, err, "boom")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1, "sinks after a failing one still receive the event")
}

func TestSinkFunc_NilIsNoop(t *testing.T) {
	var f SinkFunc
	assert.NoError(t, f.Emit(context.Background(), Event{}))
}

func TestAsyncSink_DeliversBeforeClose(t *testing.T) {
	rec := &recorder{}
	sink := NewAsyncSink(rec, 16)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Emit(context.Background(), Event{Kind: KindMedic, Attempt: i}))
	}
	sink.Close()
	sink.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 5)
	for i, e := range rec.events {
		assert.Equal(t, i, e.Attempt)
		assert.NotEmpty(t, e.ID)
	}
}

func TestAsyncSink_EmitAfterClose(t *testing.T) {
	rec := &recorder{}
	sink := NewAsyncSink(rec, 4)
	sink.Close()

	assert.NotPanics(t, func() {
		err := sink.Emit(context.Background(), Event{Kind: KindFuse})
		assert.ErrorIs(t, err, ErrSinkClosed)
	})
	assert.NotPanics(t, sink.Close)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
}

func TestAsyncSink_EmitRacingClose(t *testing.T) {
	sink := NewAsyncSink(&recorder{}, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := sink.Emit(context.Background(), Event{Kind: KindMedic, Attempt: j})
				if err != nil {
					assert.ErrorIs(t, err, ErrSinkClosed)
				}
			}
		}()
	}
	sink.Close()
	wg.Wait()
}

func TestAsyncSink_CanceledContext(t *testing.T) {
	block := make(chan struct{})
	sink := NewAsyncSink(SinkFunc(func(context.Context, Event) error {
		<-block
		return nil
	}), 1)
	defer func() {
		close(block)
		sink.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Emit(ctx, Event{})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	require.NoError(t, sink.Emit(context.Background(), Event{
		Kind:       KindFuse,
		Status:     StatusFailed,
		RunID:      "run-1",
		NodeID:     "extract",
		Error:      "Fuse Tripped",
		Message:    "loop detected",
		Attributes: map[string]any{"count": 3},
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "fuse", line["kind"])
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "extract", line["node_id"])
	assert.Equal(t, "Fuse Tripped", line["error"])
	assert.Equal(t, "loop detected", line["message"])
	assert.EqualValues(t, 3, line["count"])
}
