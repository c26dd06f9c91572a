package solver

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	model "github.com/jakechorley/clinic-planner/pkg/core/lp"
)

// RelaxationBound solves the continuous relaxation of m over the domains [lo, hi]
// and returns an upper bound on the integer optimum. It returns false when the model
// has more open variables than maxVariables or the simplex fails.
//
// Each open variable is shifted to y = x - lo >= 0 with an explicit row y + t = hi - lo,
// and every inequality row gets its own slack, so the standard form matrix always
// has full row rank.
func RelaxationBound(m *model.Model, lo, hi []float64, maxVariables int) (float64, bool) {
	column := make([]int, len(m.Vars))
	var open []int
	constant := 0.0
	for i, v := range m.Vars {
		constant += v.Objective * lo[i]
		if hi[i] > lo[i] {
			column[i] = len(open)
			open = append(open, i)
		} else {
			column[i] = -1
		}
	}

	if len(open) == 0 {
		return constant, true
	}
	if len(open) > maxVariables {
		return 0, false
	}

	// Collect inequality rows over open variables, shifted by the lower bounds
	type sparseRow struct {
		coefs map[int]float64
		rhs   float64
	}
	var rows []sparseRow
	addRow := func(terms []model.Term, rhs float64, sign float64) {
		r := sparseRow{coefs: make(map[int]float64), rhs: sign * rhs}
		for _, t := range terms {
			c := sign * t.Coef
			r.rhs -= c * lo[t.Var]
			if col := column[t.Var]; col >= 0 {
				r.coefs[col] += c
			}
		}
		if len(r.coefs) > 0 {
			rows = append(rows, r)
		}
	}
	for _, c := range m.Constraints {
		switch c.Sense {
		case model.LessEqual:
			addRow(c.Terms, c.RHS, 1)
		case model.GreaterEqual:
			addRow(c.Terms, c.RHS, -1)
		case model.Equal:
			addRow(c.Terms, c.RHS, 1)
			addRow(c.Terms, c.RHS, -1)
		}
	}
	for col, v := range open {
		rows = append(rows, sparseRow{coefs: map[int]float64{col: 1}, rhs: hi[v] - lo[v]})
	}

	// Standard form: [coefs | I] [y; s] = rhs, with rows negated where rhs < 0
	nRows := len(rows)
	nCols := len(open) + nRows
	a := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for col, c := range r.coefs {
			a.Set(i, col, sign*c)
		}
		a.Set(i, len(open)+i, sign)
		b[i] = sign * r.rhs
	}

	c := make([]float64, nCols)
	for col, v := range open {
		c[col] = -m.Vars[v].Objective
	}

	optF, _, err := lp.Simplex(c, a, b, 1e-10, nil)
	if err != nil {
		return 0, false
	}

	return constant - optF, true
}
