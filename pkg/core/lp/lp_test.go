package lp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

// feasibleIndicators returns the indicator assignments admissible for a fixed x
func feasibleIndicators(m *Model, x int, xValue float64, indicators []int) [][]float64 {
	var result [][]float64
	n := len(indicators)
	for mask := 0; mask < 1<<n; mask++ {
		values := make([]float64, len(m.Vars))
		values[x] = xValue
		for i, v := range indicators {
			if mask&(1<<i) != 0 {
				values[v] = 1
			}
		}
		if m.Check(values, tol) == nil {
			assignment := make([]float64, n)
			for i, v := range indicators {
				assignment[i] = values[v]
			}
			result = append(result, assignment)
		}
	}
	return result
}

func TestModel_AddVariables(t *testing.T) {
	m := NewModel()
	a := m.AddBinary("a", 3)
	b := m.AddInteger("b", 0, 4, -1)
	again := m.AddBinary("a", 99)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, a, again)
	assert.Equal(t, 3.0, m.Vars[a].Objective)

	i, ok := m.Index("b")
	assert.True(t, ok)
	assert.Equal(t, b, i)
	_, ok = m.Index("missing")
	assert.False(t, ok)

	assert.Equal(t, 1.0, m.Objective([]float64{1, 2}))

	m.AddConstraint("empty", nil, GreaterEqual, 2)
	require.Len(t, m.Constraints, 1)
	assert.Error(t, m.Check([]float64{0, 0}, tol))
}

func TestModel_Check(t *testing.T) {
	m := NewModel()
	a := m.AddBinary("a", 1)
	b := m.AddBinary("b", 1)
	m.AddConstraint("one", []Term{{a, 1}, {b, 1}}, Equal, 1)

	assert.NoError(t, m.Check([]float64{1, 0}, tol))
	assert.Error(t, m.Check([]float64{1, 1}, tol))
	assert.Error(t, m.Check([]float64{0.5, 0.5}, tol))
	assert.Error(t, m.Check([]float64{1}, tol))
}

func TestExprBounds(t *testing.T) {
	m := NewModel()
	x := m.AddInteger("x", 0, 5, 0)
	y := m.AddBinary("y", 0)

	expr := Expr{Constant: 2}
	expr.Add(x, 2)
	expr.Add(y, -3)

	lo, hi := expr.Bounds(m)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 12.0, hi)
}

func TestActivityIndicator(t *testing.T) {
	m := NewModel()
	x := m.AddInteger("x", 0, 5, 0)
	b := NewIndicatorBuilder(m)

	expr := Expr{}
	expr.Add(x, 1)
	y := b.Activity("active", expr, b.BigM(expr, 1))

	for value := 0; value <= 5; value++ {
		t.Run(fmt.Sprintf("x=%d", value), func(t *testing.T) {
			feasible := feasibleIndicators(m, x, float64(value), []int{y})
			require.Len(t, feasible, 1)
			expected := 0.0
			if value >= 1 {
				expected = 1
			}
			assert.Equal(t, expected, feasible[0][0])
		})
	}
}

func TestThresholdIndicator(t *testing.T) {
	m := NewModel()
	x := m.AddInteger("x", 0, 6, 0)
	b := NewIndicatorBuilder(m)

	// 2x + 1 >= 7 exactly when x >= 3
	expr := Expr{Constant: 1}
	expr.Add(x, 2)
	y := b.Threshold("over", expr, 7, b.BigM(expr, 7))

	for value := 0; value <= 6; value++ {
		t.Run(fmt.Sprintf("x=%d", value), func(t *testing.T) {
			feasible := feasibleIndicators(m, x, float64(value), []int{y})
			require.Len(t, feasible, 1)
			expected := 0.0
			if value >= 3 {
				expected = 1
			}
			assert.Equal(t, expected, feasible[0][0])
		})
	}
}

func TestTiers_ExactlyHighestReachedTier(t *testing.T) {
	m := NewModel()
	x := m.AddInteger("x", 0, 40, 0)
	b := NewIndicatorBuilder(m)

	tiers := []Tier{
		{Threshold: 22, Penalty: 100},
		{Threshold: 29, Penalty: 300},
		{Threshold: 31, Penalty: 600},
		{Threshold: 35, Penalty: 1000},
	}
	expr := Expr{}
	expr.Add(x, 1)
	vars := b.Tiers("closing", expr, tiers, b.BigM(expr, tiers[0].Threshold))

	for _, v := range vars {
		assert.Less(t, m.Vars[v].Objective, 0.0)
	}

	tests := []struct {
		x        int
		expected []float64
	}{
		{0, []float64{0, 0, 0, 0}},
		{21, []float64{0, 0, 0, 0}},
		{22, []float64{1, 0, 0, 0}},
		{28, []float64{1, 0, 0, 0}},
		{29, []float64{0, 1, 0, 0}},
		{31, []float64{0, 0, 1, 0}},
		{34, []float64{0, 0, 1, 0}},
		{35, []float64{0, 0, 0, 1}},
		{40, []float64{0, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("x=%d", tt.x), func(t *testing.T) {
			feasible := feasibleIndicators(m, x, float64(tt.x), vars)
			require.Len(t, feasible, 1)
			assert.Equal(t, tt.expected, feasible[0])
		})
	}
}
