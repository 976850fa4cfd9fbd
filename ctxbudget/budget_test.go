package ctxbudget

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateOutputReserve_Staircase(t *testing.T) {
	tests := []struct {
		window int
		want   int
	}{
		{64_000, 27_000},
		{64_001, 30_000},
		{128_000, 30_000},
		{128_001, 40_000},
		{200_000, 40_000},
		{201_000, 40_200},
		{1_000_000, 200_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateOutputReserve(tt.window), "window=%d", tt.window)
	}
}

func TestCalculateTokenBudget_Defaults(t *testing.T) {
	budget := CalculateTokenBudget(BudgetParams{TotalWindow: 128_000})
	assert.Equal(t, Budget{
		TotalWindow:   128_000,
		OutputReserve: 30_000,
		SystemReserve: DefaultSystemReserve,
		HistoryBudget: 94_000,
	}, budget)
}

func TestCalculateTokenBudget_SystemPromptOverridesReserve(t *testing.T) {
	budget := CalculateTokenBudget(BudgetParams{
		TotalWindow:        128_000,
		SystemReserve:      4_000,
		SystemPromptTokens: 6_500,
	})
	assert.Equal(t, 6_500, budget.SystemReserve)
}

func TestCalculateTokenBudget_OutputReserveOverride(t *testing.T) {
	budget := CalculateTokenBudget(BudgetParams{TotalWindow: 128_000, OutputReserve: 10_000})
	assert.Equal(t, 10_000, budget.OutputReserve)
}

func TestCalculateTokenBudget_ClampsNegativeHistoryBudget(t *testing.T) {
	budget := CalculateTokenBudget(BudgetParams{TotalWindow: 1_000, SystemReserve: 500})
	assert.Equal(t, 0, budget.HistoryBudget)
}

func TestBudgetUsage(t *testing.T) {
	budget := Budget{HistoryBudget: 1_000}
	assert.Equal(t, 0.5, BudgetUsage(500, budget))
	assert.Equal(t, float64(0), BudgetUsage(0, budget))
	assert.Equal(t, float64(0), BudgetUsage(-10, budget))
	assert.True(t, math.IsInf(BudgetUsage(10, Budget{HistoryBudget: 0}), 1))
}

func TestCalculateState_PrecedenceOverflowFirst(t *testing.T) {
	budget := Budget{HistoryBudget: 1_000}
	thresholds := Thresholds{Warning: 0.2, Critical: 0.3, Overflow: 0.9}

	assert.Equal(t, StateHealthy, CalculateState(100, budget, thresholds))
	assert.Equal(t, StateWarning, CalculateState(250, budget, thresholds))
	assert.Equal(t, StateCritical, CalculateState(500, budget, thresholds))
	assert.Equal(t, StateOverflow, CalculateState(950, budget, thresholds))
}

func TestCalculateState_ZeroHistoryBudgetIsOverflow(t *testing.T) {
	budget := Budget{HistoryBudget: 0}
	assert.Equal(t, StateOverflow, CalculateState(1, budget, DefaultThresholds))
	assert.Equal(t, StateHealthy, CalculateState(0, budget, DefaultThresholds))
}

func TestThresholds_Valid(t *testing.T) {
	assert.True(t, DefaultThresholds.Valid())
	assert.False(t, Thresholds{Warning: 0.5, Critical: 0.3, Overflow: 0.9}.Valid())
	assert.False(t, Thresholds{Warning: 0, Critical: 0.3, Overflow: 0.9}.Valid())
	assert.False(t, Thresholds{Warning: 0.2, Critical: 0.3, Overflow: 1.1}.Valid())
}
