// Package observe carries lifecycle events out of wrapped node invocations
// to pluggable sinks (logs, OpenTelemetry, custom callbacks).
package observe

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

type Status string

const (
	KindNode     Kind = "node"
	KindFuse     Kind = "fuse"
	KindSentinel Kind = "sentinel"
	KindMedic    Kind = "medic"
	KindStore    Kind = "store"
	KindCustom   Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusRepaired  Status = "repaired"
	StatusFailed    Status = "failed"
)

type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	RunID      string         `json:"runId,omitempty"`
	NodeID     string         `json:"nodeId,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
