// Package analytics aggregates trace records into the figures shown on the
// reliability dashboard: outcome counts, money saved, rolling reliability,
// mean time to repair and failure root causes.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/PipeOpsHQ/airos/sentinel"
	"github.com/PipeOpsHQ/airos/storage"
)

const (
	// DefaultWindow is the number of most recent records the reliability
	// score is computed over.
	DefaultWindow = 50

	pageSize = 500
)

// Root cause classes.
const (
	CauseValidation = "validation"
	CauseLoop       = "loop"
	CauseRepair     = "repair"
	CauseExecution  = "execution"
)

type Counts struct {
	TotalRuns int `json:"total_runs"`
	Success   int `json:"success"`
	Repaired  int `json:"repaired"`
	Failed    int `json:"failed"`
}

type Savings struct {
	TotalMoneySaved    float64 `json:"total_money_saved"`
	FailuresPrevented  int     `json:"failures_prevented"`
	LoopsKilled        int     `json:"loops_killed"`
	TotalSpend         float64 `json:"total_spend"`
	ROIMultiplier      float64 `json:"roi_multiplier"`
	LaborSaved         float64 `json:"labor_saved"`
	InfrastructureCost float64 `json:"infrastructure_cost"`
}

type Reliability struct {
	Score   float64 `json:"score"`
	Window  int     `json:"window"`
	Sampled int     `json:"sampled"`
	MTTRMs  float64 `json:"mttr_ms"`
}

type RootCause struct {
	Cause string `json:"cause"`
	Count int    `json:"count"`
}

// Rates are the settings-derived multipliers used by Savings.
type Rates struct {
	ManualLaborCost    float64
	InfrastructureRate float64
}

type Report struct {
	Counts      Counts      `json:"counts"`
	Savings     Savings     `json:"savings"`
	Reliability Reliability `json:"reliability"`
	RootCauses  []RootCause `json:"root_causes"`
}

// CountStatuses tallies traces by outcome. Loop kills count as failures.
func CountStatuses(traces []storage.Trace) Counts {
	c := Counts{TotalRuns: len(traces)}
	for _, t := range traces {
		switch {
		case t.Status == storage.StatusSuccess:
			c.Success++
		case t.Status == storage.StatusRepaired:
			c.Repaired++
		case t.Status.Failed():
			c.Failed++
		}
	}
	return c
}

func ComputeSavings(traces []storage.Trace, rates Rates) Savings {
	var s Savings
	var hours float64
	for _, t := range traces {
		s.TotalMoneySaved += t.SavedCost
		s.TotalSpend += t.EstimatedCost
		hours += t.DurationMs / float64(time.Hour/time.Millisecond)
		switch t.Status {
		case storage.StatusRepaired:
			s.FailuresPrevented++
		case storage.StatusFailedLoop:
			s.LoopsKilled++
		}
	}
	if s.TotalSpend > 0 {
		s.ROIMultiplier = round2(s.TotalMoneySaved / s.TotalSpend)
	}
	s.LaborSaved = float64(s.FailuresPrevented) * rates.ManualLaborCost
	s.InfrastructureCost = hours * rates.InfrastructureRate
	return s
}

// ReliabilityScore is the percentage of successful or repaired outcomes
// among the first window traces. Traces are expected newest first. An empty
// sample scores 100.
func ReliabilityScore(traces []storage.Trace, window int) (score float64, sampled int) {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(traces) > window {
		traces = traces[:window]
	}
	if len(traces) == 0 {
		return 100, 0
	}
	healthy := 0
	for _, t := range traces {
		if t.Status == storage.StatusSuccess || t.Status == storage.StatusRepaired {
			healthy++
		}
	}
	return round2(float64(healthy) * 100 / float64(len(traces))), len(traces)
}

// MeanTimeToRepair averages the duration of repaired invocations.
func MeanTimeToRepair(traces []storage.Trace) time.Duration {
	var total float64
	n := 0
	for _, t := range traces {
		if t.Status != storage.StatusRepaired {
			continue
		}
		total += t.DurationMs
		n++
	}
	if n == 0 {
		return 0
	}
	return time.Duration(total / float64(n) * float64(time.Millisecond))
}

// Classify maps a non-successful trace to its root cause class.
func Classify(t storage.Trace) string {
	switch {
	case t.Status == storage.StatusFailedLoop:
		return CauseLoop
	case strings.Contains(t.Diagnosis, sentinel.Marker):
		return CauseValidation
	case strings.HasPrefix(t.Diagnosis, "Medic:"):
		return CauseRepair
	default:
		return CauseExecution
	}
}

// RootCauses groups repaired and failed traces by cause, most frequent first.
func RootCauses(traces []storage.Trace) []RootCause {
	counts := map[string]int{}
	for _, t := range traces {
		if t.Status == storage.StatusSuccess {
			continue
		}
		counts[Classify(t)]++
	}
	out := make([]RootCause, 0, len(counts))
	for cause, n := range counts {
		out = append(out, RootCause{Cause: cause, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cause < out[j].Cause
	})
	return out
}

// Build computes every figure from traces, which must be newest first.
func Build(traces []storage.Trace, rates Rates, window int) Report {
	if window <= 0 {
		window = DefaultWindow
	}
	score, sampled := ReliabilityScore(traces, window)
	return Report{
		Counts:  CountStatuses(traces),
		Savings: ComputeSavings(traces, rates),
		Reliability: Reliability{
			Score:   score,
			Window:  window,
			Sampled: sampled,
			MTTRMs:  float64(MeanTimeToRepair(traces)) / float64(time.Millisecond),
		},
		RootCauses: RootCauses(traces),
	}
}

// Load reads every trace and the rate settings from store and builds the
// report.
func Load(ctx context.Context, store storage.Store, window int) (Report, error) {
	traces, err := AllTraces(ctx, store)
	if err != nil {
		return Report{}, err
	}
	rates, err := LoadRates(ctx, store)
	if err != nil {
		return Report{}, err
	}
	return Build(traces, rates, window), nil
}

// AllTraces pages through the store newest first.
func AllTraces(ctx context.Context, store storage.Store) ([]storage.Trace, error) {
	var out []storage.Trace
	for offset := 0; ; offset += pageSize {
		page, err := store.ListTraces(ctx, storage.ListQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list traces: %w", err)
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func LoadRates(ctx context.Context, store storage.Store) (Rates, error) {
	labor, err := storage.FloatSetting(ctx, store, storage.SettingManualLaborCost)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to read %s: %w", storage.SettingManualLaborCost, err)
	}
	infra, err := storage.FloatSetting(ctx, store, storage.SettingInfrastructureRate)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to read %s: %w", storage.SettingInfrastructureRate, err)
	}
	return Rates{ManualLaborCost: labor, InfrastructureRate: infra}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
