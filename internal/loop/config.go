// Package loop implements the tiered validation loop: an iterative state
// machine that gates on blocking checks, scores warning and monitor
// tiers, and decides whether to request a fix or terminate.
package loop

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in configuration defaults.
const (
	DefaultMaxIterations     = 5
	DefaultMinScoreThreshold = 70.0
	DefaultTier1Timeout      = 30 * time.Second
	DefaultTier2Timeout      = 120 * time.Second
)

// Mapping keys used by ConfigFromMap / Config.ToMap.
const (
	keyMaxIterations     = "max_iterations"
	keyMinScoreThreshold = "min_score_threshold"
	keyTier1Timeout      = "tier1_timeout_seconds"
	keyTier2Timeout      = "tier2_timeout_seconds"
)

// Config is the immutable loop configuration. Construct it through
// DefaultConfig, ConfigFromMap, or LoadConfigFile and treat the value as
// read-only afterward.
type Config struct {
	MaxIterations     int
	MinScoreThreshold float64
	Tier1Timeout      time.Duration
	Tier2Timeout      time.Duration
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     DefaultMaxIterations,
		MinScoreThreshold: DefaultMinScoreThreshold,
		Tier1Timeout:      DefaultTier1Timeout,
		Tier2Timeout:      DefaultTier2Timeout,
	}
}

// ConfigFromMap builds a Config from a partial mapping. Missing keys
// fall back to defaults; values that fail to parse or fall outside the
// valid range are ignored in favor of the default.
func ConfigFromMap(m map[string]any) Config {
	cfg := DefaultConfig()
	if m == nil {
		return cfg
	}

	if v, ok := toInt(m[keyMaxIterations]); ok && v > 0 {
		cfg.MaxIterations = v
	}
	if v, ok := toFloat(m[keyMinScoreThreshold]); ok && v >= 0 && v <= 100 {
		cfg.MinScoreThreshold = v
	}
	if v, ok := toFloat(m[keyTier1Timeout]); ok && v > 0 {
		cfg.Tier1Timeout = time.Duration(v * float64(time.Second))
	}
	if v, ok := toFloat(m[keyTier2Timeout]); ok && v > 0 {
		cfg.Tier2Timeout = time.Duration(v * float64(time.Second))
	}
	return cfg
}

// LoadConfigFile reads a YAML mapping from path and builds a Config.
// A missing or invalid file silently yields the defaults; loading
// configuration never fails.
func LoadConfigFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig()
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return DefaultConfig()
	}
	return ConfigFromMap(m)
}

// ToMap serializes the Config as a plain mapping. Feeding the result to
// ConfigFromMap reproduces identical field values.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		keyMaxIterations:     c.MaxIterations,
		keyMinScoreThreshold: c.MinScoreThreshold,
		keyTier1Timeout:      c.Tier1Timeout.Seconds(),
		keyTier2Timeout:      c.Tier2Timeout.Seconds(),
	}
}

// toInt coerces YAML/JSON scalar types to int.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// toFloat coerces YAML/JSON scalar types to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
