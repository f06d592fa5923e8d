// Package medic repairs failed node outputs through an injected text
// completion capability.
//
// Recovery is bounded: attempts past MaxAttempts fail immediately, and a
// Medic without a repair capability hands the original error straight back
// instead of inventing a fix.
package medic

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxAttempts is the hard cap on recovery attempts per invocation.
const MaxAttempts = 2

// NoOutput stands in for the previous output when execution itself failed.
const NoOutput = "N/A (Execution Failed)"

var (
	// ErrRecoveryExhausted matches a RepairError raised past MaxAttempts.
	ErrRecoveryExhausted = errors.New("medic: recovery attempts exhausted")
	// ErrRepairFailed matches a RepairError raised when the capability call
	// or the parse of its response failed.
	ErrRepairFailed = errors.New("medic: repair failed")
)

// RepairFunc turns a repair prompt into a response expected to carry JSON.
type RepairFunc func(ctx context.Context, prompt string) (string, error)

// RepairError is the single error kind produced by the repair mechanism.
type RepairError struct {
	Kind    error
	Attempt int
	Cause   error
}

func (e *RepairError) Error() string {
	if e.Kind == ErrRecoveryExhausted {
		return fmt.Sprintf("Medic: Critical Failure. Exceeded %d recovery attempts. Original error: %v", MaxAttempts, e.Cause)
	}
	return fmt.Sprintf("Medic: Repair failed during LLM call or parsing. Error: %v", e.Cause)
}

func (e *RepairError) Unwrap() error { return e.Cause }

func (e *RepairError) Is(target error) bool {
	return target != nil && target == e.Kind
}

// Request carries everything a single repair attempt needs.
type Request struct {
	Err        error
	InputState any
	RawOutput  any
	NodeID     string
	Attempt    int
	// Schema is the JSON Schema of the required output, if any.
	Schema map[string]any
}

type Medic struct {
	repair RepairFunc
	logger zerolog.Logger
}

type Option func(*Medic)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Medic) { m.logger = logger }
}

// New returns a Medic. A nil repair capability is allowed; such a Medic only
// re-raises.
func New(repair RepairFunc, opts ...Option) *Medic {
	m := &Medic{repair: repair, logger: log.Logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanRepair reports whether a repair capability is configured.
func (m *Medic) CanRepair() bool {
	return m != nil && m.repair != nil
}

// AttemptRecovery asks the repair capability for a corrected value.
func (m *Medic) AttemptRecovery(ctx context.Context, req Request) (any, error) {
	if req.Attempt > MaxAttempts {
		return nil, &RepairError{Kind: ErrRecoveryExhausted, Attempt: req.Attempt, Cause: req.Err}
	}
	if !m.CanRepair() {
		return nil, req.Err
	}

	m.logger.Info().
		Str("node", req.NodeID).
		Int("attempt", req.Attempt).
		Msg("medic: initiating repair sequence")

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, &RepairError{Kind: ErrRepairFailed, Attempt: req.Attempt, Cause: err}
	}
	text, err := m.repair(ctx, prompt)
	if err != nil {
		return nil, &RepairError{Kind: ErrRepairFailed, Attempt: req.Attempt, Cause: err}
	}
	fixed, err := ParseRepair(text)
	if err != nil {
		return nil, &RepairError{Kind: ErrRepairFailed, Attempt: req.Attempt, Cause: err}
	}
	return fixed, nil
}
