package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusSuccess    Status = "success"
	StatusRepaired   Status = "repaired"
	StatusFailed     Status = "failed"
	StatusFailedLoop Status = "failed_loop"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusRepaired, StatusFailed, StatusFailedLoop:
		return true
	}
	return false
}

// Failed reports whether s is any failure status.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusFailedLoop
}

// Trace is one node invocation outcome. Field names follow the persisted
// column names consumed by the dashboard.
type Trace struct {
	ID               int64           `json:"id"`
	RunID            string          `json:"run_id"`
	NodeID           string          `json:"node_id"`
	InputState       json.RawMessage `json:"input_state"`
	OutputState      json.RawMessage `json:"output_state"`
	Status           Status          `json:"status"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	SavedCost        float64         `json:"saved_cost"`
	TokenUsage       int             `json:"token_usage"`
	EstimatedCost    float64         `json:"estimated_cost"`
	Diagnosis        string          `json:"diagnosis,omitempty"`
	DurationMs       float64         `json:"duration_ms"`
	Timestamp        time.Time       `json:"timestamp"`
}

// EncodeState renders an arbitrary state value as JSON. Values that cannot
// be encoded are stored as their fmt representation in a JSON string.
func EncodeState(v any) json.RawMessage {
	switch val := v.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		if json.Valid(val) {
			return append(json.RawMessage(nil), val...)
		}
		v = string(val)
	case error:
		v = val.Error()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return raw
}

// Prepare validates trace and fills defaults before insertion. Backends call
// it from LogTrace.
func Prepare(trace Trace, now time.Time) (Trace, error) {
	if strings.TrimSpace(trace.RunID) == "" {
		return Trace{}, fmt.Errorf("%w: run_id is required", ErrInvalidTrace)
	}
	if strings.TrimSpace(trace.NodeID) == "" {
		return Trace{}, fmt.Errorf("%w: node_id is required", ErrInvalidTrace)
	}
	if !trace.Status.Valid() {
		return Trace{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTrace, trace.Status)
	}
	if trace.RecoveryAttempts < 0 {
		return Trace{}, fmt.Errorf("%w: recovery_attempts must be >= 0", ErrInvalidTrace)
	}
	if trace.SavedCost < 0 {
		trace.SavedCost = 0
	}
	if len(trace.InputState) == 0 {
		trace.InputState = json.RawMessage("null")
	}
	if len(trace.OutputState) == 0 {
		trace.OutputState = json.RawMessage("null")
	}
	if trace.Timestamp.IsZero() {
		trace.Timestamp = now
	}
	trace.Timestamp = trace.Timestamp.UTC()
	trace.ID = 0
	return trace, nil
}

// Matches reports whether trace satisfies the query's filters.
func (q ListQuery) Matches(trace Trace) bool {
	if q.RunID != "" && trace.RunID != q.RunID {
		return false
	}
	if q.NodeID != "" && trace.NodeID != q.NodeID {
		return false
	}
	if q.Status != "" && trace.Status != q.Status {
		return false
	}
	return true
}

// Normalize applies the default limit and clamps the offset.
func (q ListQuery) Normalize(defaultLimit int) ListQuery {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
