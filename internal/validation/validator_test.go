package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func passResult(dim string) Result {
	return Result{Passed: true, Dimension: dim, DurationMs: 1}
}

func failResult(dim string) Result {
	return Result{Passed: false, Dimension: dim, DurationMs: 1, Detail: "check failed"}
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "blocker", TierBlocker.String())
	assert.Equal(t, "warning", TierWarning.String())
	assert.Equal(t, "monitor", TierMonitor.String())
	assert.Equal(t, "tier-7", Tier(7).String())
}

func TestScoreEmptyResultsIsVacuousPass(t *testing.T) {
	tr := TierResult{Tier: TierMonitor, Passed: true}
	assert.Equal(t, 100.0, tr.Score())
}

func TestScoreAllPassed(t *testing.T) {
	tr := TierResult{Results: []Result{passResult("a"), passResult("b")}}
	assert.Equal(t, 100.0, tr.Score())
}

func TestScoreAllFailed(t *testing.T) {
	tr := TierResult{Results: []Result{failResult("a"), failResult("b")}}
	assert.Equal(t, 0.0, tr.Score())
}

func TestScorePartial(t *testing.T) {
	tr := TierResult{Results: []Result{passResult("a"), failResult("b")}}
	assert.Equal(t, 50.0, tr.Score())
}

func TestScoreBounds(t *testing.T) {
	combos := [][]Result{
		nil,
		{passResult("a")},
		{failResult("a")},
		{passResult("a"), failResult("b"), passResult("c")},
	}
	for _, results := range combos {
		s := TierResult{Results: results}.Score()
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestFailedDimensionsPreservesOrder(t *testing.T) {
	tr := TierResult{Results: []Result{
		failResult("design-principles"),
		passResult("oss-reuse"),
		failResult("api-contract"),
	}}
	assert.Equal(t, []string{"design-principles", "api-contract"}, tr.FailedDimensions())
	assert.Equal(t, 2, tr.FailedCount())
}

func TestValidatorFuncAdapter(t *testing.T) {
	v := ValidatorFunc{
		Dim: "mathematical",
		Fn: func(ctx context.Context, files []string) Result {
			return passResult("mathematical")
		},
	}
	assert.Equal(t, "mathematical", v.Dimension())
	assert.True(t, v.Validate(context.Background(), nil).Passed)
}

func TestParseEnabledFlag(t *testing.T) {
	tests := []struct {
		in       string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"  False ", true, false},
		{"0", true, false},
		{"yes", false, true},
		{"", true, true},
		{"", false, false},
		{"garbage", true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseEnabledFlag(tt.in, tt.def), "input %q", tt.in)
	}
}
