package reliable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PipeOpsHQ/airos/fuse"
	"github.com/PipeOpsHQ/airos/medic"
	"github.com/PipeOpsHQ/airos/observe"
	"github.com/PipeOpsHQ/airos/sentinel"
	"github.com/PipeOpsHQ/airos/storage"
)

// invocation is the transient context of one wrapped call.
type invocation struct {
	opts   *options
	node   Node
	runID  string
	nodeID string
	state  any
	cfg    RunConfig
}

func (inv *invocation) run(ctx context.Context) (any, error) {
	o := inv.opts
	f := fuse.New(o.fuseLimit)
	m := medic.New(o.repair, medic.WithLogger(o.logger))
	s := sentinel.New(o.contract)

	input := storage.EncodeState(inv.state)
	if err := f.Check(inv.history(ctx, input), input); err != nil {
		o.logger.Warn().
			Str("run_id", inv.runID).
			Str("node_id", inv.nodeID).
			Int("limit", f.Limit()).
			Msg("fuse tripped")
		inv.emit(ctx, observe.Event{Kind: observe.KindFuse, Status: observe.StatusFailed, Error: err.Error()})
		return nil, inv.record(ctx, storage.Trace{
			Status:    storage.StatusFailedLoop,
			Diagnosis: err.Error(),
		}, err)
	}

	start := o.now()
	var (
		status    = storage.StatusSuccess
		attempts  int
		savedCost float64
		diagnosis string
	)

	result, current := inv.execute(ctx)
	lastOutput := result
	if current != nil {
		diagnosis = current.Error()
		if o.legacy != nil && o.repair == nil {
			fixed, err := o.legacy(current, inv.state)
			if err != nil {
				current = err
				diagnosis = err.Error()
			} else {
				result, lastOutput = fixed, fixed
				status = storage.StatusRepaired
				attempts = 1
				current = nil
			}
		}
	}

	if current == nil {
		validated, err := s.Validate(result)
		if err != nil {
			current = err
			diagnosis = err.Error()
		} else {
			result = validated
		}
	}

	var schema map[string]any
	if c := s.Contract(); c != nil {
		schema = c.Describe()
	}

	for current != nil && attempts < medic.MaxAttempts {
		attempts++
		rawOutput := any(medic.NoOutput)
		if sentinel.IsValidationFailure(current) {
			rawOutput = lastOutput
		}
		inv.emit(ctx, observe.Event{Kind: observe.KindMedic, Status: observe.StatusStarted, Attempt: attempts, Error: current.Error()})

		fixed, err := m.AttemptRecovery(ctx, medic.Request{
			Err:        current,
			InputState: inv.state,
			RawOutput:  rawOutput,
			NodeID:     inv.nodeID,
			Attempt:    attempts,
			Schema:     schema,
		})
		if err == nil {
			lastOutput = fixed
			fixed, err = s.Validate(fixed)
		}
		if err != nil {
			inv.emit(ctx, observe.Event{Kind: observe.KindMedic, Status: observe.StatusFailed, Attempt: attempts, Error: err.Error()})
			current = err
			diagnosis = err.Error()
			continue
		}

		savedCost = inv.savings(ctx, current, fixed)
		result = fixed
		current = nil
		status = storage.StatusRepaired
		inv.emit(ctx, observe.Event{Kind: observe.KindMedic, Status: observe.StatusRepaired, Attempt: attempts})
	}

	elapsed := o.now().Sub(start)
	if current != nil {
		o.logger.Error().
			Err(current).
			Str("run_id", inv.runID).
			Str("node_id", inv.nodeID).
			Int("recovery_attempts", attempts).
			Msg("node failed")
		inv.emit(ctx, observe.Event{
			Kind:       observe.KindNode,
			Status:     observe.StatusFailed,
			Attempt:    attempts,
			Error:      current.Error(),
			DurationMs: elapsed.Milliseconds(),
		})
		return nil, inv.record(ctx, storage.Trace{
			OutputState:      storage.EncodeState(current.Error()),
			Status:           storage.StatusFailed,
			RecoveryAttempts: attempts,
			Diagnosis:        current.Error(),
			DurationMs:       milliseconds(elapsed),
		}, current)
	}

	tokens := estimateTokens(inv.state) + estimateTokens(result)
	trace := storage.Trace{
		OutputState:      storage.EncodeState(result),
		Status:           status,
		RecoveryAttempts: attempts,
		SavedCost:        savedCost,
		TokenUsage:       tokens,
		EstimatedCost:    float64(tokens) * inv.price(ctx),
		DurationMs:       milliseconds(elapsed),
	}
	eventStatus := observe.StatusCompleted
	if status == storage.StatusRepaired {
		trace.Diagnosis = diagnosis
		eventStatus = observe.StatusRepaired
		o.logger.Info().
			Str("run_id", inv.runID).
			Str("node_id", inv.nodeID).
			Int("recovery_attempts", attempts).
			Float64("saved_cost", savedCost).
			Msg("node repaired")
	}
	inv.emit(ctx, observe.Event{
		Kind:       observe.KindNode,
		Status:     eventStatus,
		Attempt:    attempts,
		DurationMs: elapsed.Milliseconds(),
	})
	inv.record(ctx, trace, nil)
	return result, nil
}

func (inv *invocation) execute(ctx context.Context) (any, error) {
	if inv.node == nil {
		return nil, ErrNilNode
	}
	return inv.node(ctx, inv.state, inv.cfg)
}

// history returns the fingerprints of this node's earlier inputs in the run
// followed by the current input's, so the limit-th identical call trips.
// input is the current state in its stored encoding.
func (inv *invocation) history(ctx context.Context, input json.RawMessage) []string {
	current := fuse.FingerprintJSON(input)
	traces, err := inv.opts.store.RunHistory(ctx, inv.runID)
	if err != nil {
		inv.opts.logger.Error().
			Err(err).
			Str("run_id", inv.runID).
			Str("node_id", inv.nodeID).
			Msg("failed to load run history; loop detection sees only this call")
		return []string{current}
	}
	out := make([]string, 0, len(traces)+1)
	for _, t := range traces {
		if t.NodeID == inv.nodeID {
			out = append(out, fuse.FingerprintJSON(t.InputState))
		}
	}
	return append(out, current)
}

// savings is what an early repair saved over re-running the run so far:
// the cost committed before this call minus the repair call's own cost.
func (inv *invocation) savings(ctx context.Context, repaired error, fixed any) float64 {
	before, err := inv.opts.store.RunCost(ctx, inv.runID)
	if err != nil {
		inv.opts.logger.Warn().Err(err).Str("run_id", inv.runID).Msg("failed to load run cost; savings not computed")
		return 0
	}
	tokens := estimateTokens(inv.state) + estimateTokens(repaired) + estimateTokens(fixed) + repairOverheadTokens
	return math.Max(0, before-float64(tokens)*inv.price(ctx))
}

func (inv *invocation) price(ctx context.Context) float64 {
	p, err := storage.FloatSetting(ctx, inv.opts.store, storage.SettingCostPerToken)
	if err != nil {
		inv.opts.logger.Warn().Err(err).Msg("failed to load cost_per_token; using default")
		return defaultPrice
	}
	return p
}

// record writes the invocation's single trace and returns terminal, joined
// with any store failure.
func (inv *invocation) record(ctx context.Context, trace storage.Trace, terminal error) error {
	trace.RunID = inv.runID
	trace.NodeID = inv.nodeID
	trace.InputState = storage.EncodeState(inv.state)
	trace.Timestamp = inv.opts.now().UTC()

	if _, err := inv.opts.store.LogTrace(context.WithoutCancel(ctx), trace); err != nil {
		err = fmt.Errorf("failed to record trace: %w", err)
		inv.opts.logger.Error().
			Err(err).
			Str("run_id", inv.runID).
			Str("node_id", inv.nodeID).
			Str("status", string(trace.Status)).
			Msg("trace lost")
		inv.emit(ctx, observe.Event{Kind: observe.KindStore, Status: observe.StatusFailed, Error: err.Error()})
		if terminal != nil {
			return errors.Join(terminal, err)
		}
		return err
	}
	return terminal
}

func (inv *invocation) emit(ctx context.Context, event observe.Event) {
	event.RunID = inv.runID
	event.NodeID = inv.nodeID
	if event.Timestamp.IsZero() {
		event.Timestamp = inv.opts.now().UTC()
	}
	if err := inv.opts.observer.Emit(ctx, event); err != nil {
		inv.opts.logger.Debug().Err(err).Str("kind", string(event.Kind)).Msg("observer emit failed")
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
