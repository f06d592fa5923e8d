package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

const (
	// SettingCostPerToken is the price of one token in the billing currency.
	SettingCostPerToken = "cost_per_token"
	// SettingManualLaborCost is the cost of a human triaging one failure.
	SettingManualLaborCost = "manual_labor_cost"
	// SettingInfrastructureRate is the infrastructure cost per hour of node runtime.
	SettingInfrastructureRate = "infrastructure_rate"
)

// DefaultSettings are reported for keys that were never written.
var DefaultSettings = map[string]string{
	SettingCostPerToken:       "0.000005",
	SettingManualLaborCost:    "25.00",
	SettingInfrastructureRate: "0.50",
}

// Setting returns the stored value for key, or its documented default.
func Setting(ctx context.Context, s Store, key string) (string, error) {
	value, err := s.GetSetting(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if def, ok := DefaultSettings[key]; ok {
		return def, nil
	}
	return "", err
}

// FloatSetting is Setting parsed as a float. An unparseable stored value
// falls back to the default.
func FloatSetting(ctx context.Context, s Store, key string) (float64, error) {
	raw, err := Setting(ctx, s, key)
	if err != nil {
		return 0, err
	}
	f, perr := strconv.ParseFloat(raw, 64)
	if perr == nil {
		return f, nil
	}
	def, ok := DefaultSettings[key]
	if !ok {
		return 0, fmt.Errorf("setting %q is not a number: %w", key, perr)
	}
	return strconv.ParseFloat(def, 64)
}

// EffectiveSettings merges stored settings over the defaults.
func EffectiveSettings(ctx context.Context, s Store) (map[string]string, error) {
	stored, err := s.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(DefaultSettings)+len(stored))
	for k, v := range DefaultSettings {
		out[k] = v
	}
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}
