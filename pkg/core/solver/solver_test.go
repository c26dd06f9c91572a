package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/lp"
)

func newSolver(useRelaxation bool) *BranchAndBound {
	return NewBranchAndBound(Options{
		MaxNodes:               100_000,
		UseRelaxation:          useRelaxation,
		MaxRelaxationVariables: 200,
	}, zap.NewNop())
}

// assignmentModel builds staff x options binaries with one option per staff member
// and a capacity per option
func assignmentModel(scores [][]float64, capacity []float64) (*lp.Model, [][]int) {
	m := lp.NewModel()
	vars := make([][]int, len(scores))
	for s, row := range scores {
		vars[s] = make([]int, len(row))
		terms := make([]lp.Term, len(row))
		for o, score := range row {
			vars[s][o] = m.AddBinary(fmt.Sprintf("x|%d|%d", s, o), score)
			terms[o] = lp.Term{Var: vars[s][o], Coef: 1}
		}
		m.AddConstraint(fmt.Sprintf("one|%d", s), terms, lp.Equal, 1)
	}
	for o, c := range capacity {
		var terms []lp.Term
		for s := range scores {
			terms = append(terms, lp.Term{Var: vars[s][o], Coef: 1})
		}
		m.AddConstraint(fmt.Sprintf("cap|%d", o), terms, lp.LessEqual, c)
	}
	return m, vars
}

// bruteForce enumerates every option choice of an assignment model
func bruteForce(scores [][]float64, capacity []float64) (float64, bool) {
	best := math.Inf(-1)
	found := false
	choice := make([]int, len(scores))

	var walk func(s int)
	walk = func(s int) {
		if s == len(scores) {
			used := make([]float64, len(capacity))
			total := 0.0
			for i, o := range choice {
				used[o]++
				total += scores[i][o]
			}
			for o := range capacity {
				if used[o] > capacity[o] {
					return
				}
			}
			found = true
			best = math.Max(best, total)
			return
		}
		for o := range scores[s] {
			choice[s] = o
			walk(s + 1)
		}
	}
	walk(0)
	return best, found
}

func TestSolve_SimpleAssignment(t *testing.T) {
	// Both staff prefer option 0, which has room for one
	scores := [][]float64{
		{10, 1, 0},
		{9, 8, 0},
	}
	m, vars := assignmentModel(scores, []float64{1, 1, 2})

	for _, relaxation := range []bool{false, true} {
		t.Run(fmt.Sprintf("relaxation=%v", relaxation), func(t *testing.T) {
			result, err := newSolver(relaxation).Solve(context.Background(), m)
			require.NoError(t, err)

			assert.Equal(t, StatusOptimal, result.Status)
			assert.InDelta(t, 18.0, result.Objective, 1e-9)
			assert.True(t, result.Selected(vars[0][0]))
			assert.True(t, result.Selected(vars[1][1]))
			assert.NoError(t, m.Check(result.Values, 1e-9))
		})
	}
}

func TestSolve_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 40; trial++ {
		staff := 2 + rng.Intn(4)
		options := 2 + rng.Intn(3)
		scores := make([][]float64, staff)
		for s := range scores {
			scores[s] = make([]float64, options)
			for o := range scores[s] {
				scores[s][o] = float64(rng.Intn(200)) - 50
			}
		}
		capacity := make([]float64, options)
		for o := range capacity {
			capacity[o] = float64(rng.Intn(3))
		}

		expected, feasible := bruteForce(scores, capacity)
		m, _ := assignmentModel(scores, capacity)

		for _, relaxation := range []bool{false, true} {
			result, err := newSolver(relaxation).Solve(context.Background(), m)
			require.NoError(t, err)

			if !feasible {
				assert.Equal(t, StatusInfeasible, result.Status, "trial %d", trial)
				continue
			}
			require.Equal(t, StatusOptimal, result.Status, "trial %d", trial)
			assert.InDelta(t, expected, result.Objective, 1e-6, "trial %d relaxation=%v", trial, relaxation)
			assert.NoError(t, m.Check(result.Values, 1e-9))
		}
	}
}

func TestSolve_Infeasible(t *testing.T) {
	// Three staff, two seats in total
	m, _ := assignmentModel([][]float64{{1, 1}, {1, 1}, {1, 1}}, []float64{1, 1})

	result, err := newSolver(false).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Nil(t, result.Values)
	assert.False(t, result.Selected(0))
}

func TestSolve_NonFiniteObjectiveIsInfeasible(t *testing.T) {
	m := lp.NewModel()
	m.AddBinary("a", math.NaN())
	m.AddBinary("b", math.Inf(1))

	result, err := newSolver(false).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.NotEmpty(t, result.Reason)
}

func TestSolve_IntegerVariables(t *testing.T) {
	// maximize 3a + 2b with a + b <= 4, a <= 3, a - b >= -1 (integers)
	m := lp.NewModel()
	a := m.AddInteger("a", 0, 3, 3)
	b := m.AddInteger("b", 0, 10, 2)
	m.AddConstraint("sum", []lp.Term{{Var: a, Coef: 1}, {Var: b, Coef: 1}}, lp.LessEqual, 4)
	m.AddConstraint("diff", []lp.Term{{Var: a, Coef: 1}, {Var: b, Coef: -1}}, lp.GreaterEqual, -1)

	result, err := newSolver(true).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, result.Status)
	assert.InDelta(t, 11.0, result.Objective, 1e-9)
	assert.Equal(t, 3.0, result.Values[a])
	assert.Equal(t, 1.0, result.Values[b])
}

func TestSolve_TierPenaltiesAvoided(t *testing.T) {
	// Picking both items crosses a tier costing more than the second item is worth
	m := lp.NewModel()
	x := m.AddBinary("x", 10)
	y := m.AddBinary("y", 8)
	builder := lp.NewIndicatorBuilder(m)

	count := lp.Expr{}
	count.Add(x, 1)
	count.Add(y, 1)
	builder.Tiers("tier", count, []lp.Tier{{Threshold: 2, Penalty: 20}}, builder.BigM(count, 2))

	result, err := newSolver(false).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, result.Status)
	assert.InDelta(t, 10.0, result.Objective, 1e-9)
	assert.True(t, result.Selected(x))
	assert.False(t, result.Selected(y))
}

func TestSolve_NodeLimit(t *testing.T) {
	scores := make([][]float64, 8)
	for s := range scores {
		scores[s] = []float64{float64(s), float64(8 - s), 1}
	}
	m, _ := assignmentModel(scores, []float64{3, 3, 8})

	limited := NewBranchAndBound(Options{MaxNodes: 3}, zap.NewNop())
	result, err := limited.Solve(context.Background(), m)
	if err != nil {
		assert.ErrorIs(t, err, ErrNodeLimit)
		return
	}
	assert.Equal(t, StatusFeasible, result.Status)
	assert.NoError(t, m.Check(result.Values, 1e-9))
}

func TestSolve_NodeLimitWithoutIncumbent(t *testing.T) {
	m, _ := assignmentModel([][]float64{{1, 2}, {3, 4}, {5, 6}}, []float64{2, 2})

	limited := NewBranchAndBound(Options{MaxNodes: 1}, zap.NewNop())
	_, err := limited.Solve(context.Background(), m)
	assert.ErrorIs(t, err, ErrNodeLimit)
}

func TestRelaxationBound(t *testing.T) {
	// maximize x + y with x + y <= 1.5 over binaries: relaxation gives 1.5
	m := lp.NewModel()
	x := m.AddBinary("x", 1)
	y := m.AddBinary("y", 1)
	m.AddConstraint("cap", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, lp.LessEqual, 1.5)

	bound, ok := RelaxationBound(m, []float64{0, 0}, []float64{1, 1}, 10)
	require.True(t, ok)
	assert.InDelta(t, 1.5, bound, 1e-9)

	// Fixed variables contribute their value
	bound, ok = RelaxationBound(m, []float64{1, 0}, []float64{1, 0}, 10)
	require.True(t, ok)
	assert.InDelta(t, 1.0, bound, 1e-9)

	_, ok = RelaxationBound(m, []float64{0, 0}, []float64{1, 1}, 1)
	assert.False(t, ok)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "feasible", StatusFeasible.String())
	assert.Equal(t, "infeasible", StatusInfeasible.String())
}
