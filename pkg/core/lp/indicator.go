package lp

import (
	"fmt"
	"math"
)

// Tier is one step of an escalating penalty
type Tier struct {
	Threshold float64
	Penalty   float64
}

// IndicatorBuilder emits binary indicator variables linked to integer-valued linear
// expressions through Big-M constraints
type IndicatorBuilder struct {
	m *Model
}

// NewIndicatorBuilder creates a builder writing into m
func NewIndicatorBuilder(m *Model) *IndicatorBuilder {
	return &IndicatorBuilder{m: m}
}

// BigM returns a bound large enough for every indicator of expr against threshold
func (b *IndicatorBuilder) BigM(expr Expr, threshold float64) float64 {
	lo, hi := expr.Bounds(b.m)
	return math.Max(1, math.Max(hi, math.Max(hi-threshold+1, threshold-lo)))
}

// Activity adds y with y = 1 exactly when the non-negative expression is at least 1:
//
//	expr - M*y <= 0
//	y - expr <= 0
func (b *IndicatorBuilder) Activity(name string, expr Expr, bigM float64) int {
	y := b.m.AddBinary(name, 0)

	upper := withTerm(expr, y, -bigM)
	b.m.AddExprConstraint(name+"|on", upper, LessEqual, 0)

	lower := negate(expr)
	lower.Add(y, 1)
	b.m.AddExprConstraint(name+"|off", lower, LessEqual, 0)

	return y
}

// Threshold adds y with y = 1 exactly when the expression reaches the threshold:
//
//	expr - M*y <= threshold - 1
//	expr - M*y >= threshold - M
func (b *IndicatorBuilder) Threshold(name string, expr Expr, threshold, bigM float64) int {
	y := b.m.AddBinary(name, 0)

	linked := withTerm(expr, y, -bigM)
	b.m.AddExprConstraint(name+"|below", linked, LessEqual, threshold-1)
	b.m.AddExprConstraint(name+"|above", linked, GreaterEqual, threshold-bigM)

	return y
}

// Tiers adds one binary per tier. Exactly the highest tier whose threshold the
// expression reaches is set, and its penalty is subtracted from the objective.
// Tiers must be sorted by strictly increasing threshold.
//
//	sum(t) <= 1
//	expr <= threshold_k - 1 + M * sum(t_j, j >= k)   for each k
//	expr >= threshold_k * t_k                         for each k
func (b *IndicatorBuilder) Tiers(name string, expr Expr, tiers []Tier, bigM float64) []int {
	vars := make([]int, len(tiers))
	exclusive := make([]Term, len(tiers))
	for k, tier := range tiers {
		vars[k] = b.m.AddBinary(fmt.Sprintf("%s|%d", name, k), -tier.Penalty)
		exclusive[k] = Term{Var: vars[k], Coef: 1}
	}
	b.m.AddConstraint(name+"|exclusive", exclusive, LessEqual, 1)

	for k, tier := range tiers {
		reach := Expr{Terms: append([]Term(nil), expr.Terms...), Constant: expr.Constant}
		for j := k; j < len(tiers); j++ {
			reach.Add(vars[j], -bigM)
		}
		b.m.AddExprConstraint(fmt.Sprintf("%s|reach|%d", name, k), reach, LessEqual, tier.Threshold-1)

		floor := withTerm(expr, vars[k], -tier.Threshold)
		b.m.AddExprConstraint(fmt.Sprintf("%s|floor|%d", name, k), floor, GreaterEqual, 0)
	}

	return vars
}

func withTerm(expr Expr, v int, coef float64) Expr {
	terms := make([]Term, len(expr.Terms), len(expr.Terms)+1)
	copy(terms, expr.Terms)
	return Expr{Terms: append(terms, Term{Var: v, Coef: coef}), Constant: expr.Constant}
}

func negate(expr Expr) Expr {
	terms := make([]Term, len(expr.Terms))
	for i, t := range expr.Terms {
		terms[i] = Term{Var: t.Var, Coef: -t.Coef}
	}
	return Expr{Terms: terms, Constant: -expr.Constant}
}
