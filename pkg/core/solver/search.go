package solver

import (
	"context"
	"math"

	"github.com/jakechorley/clinic-planner/pkg/core/lp"
)

const eps = 1e-6

// row is a constraint normalised to sum(terms) <= rhs
type row struct {
	terms []lp.Term
	rhs   float64
}

type change struct {
	v      int
	lo, hi float64
}

type search struct {
	ctx context.Context
	m   *lp.Model

	lo, hi []float64
	trail  []change

	rows    []row
	varRows [][]int
	queue   []int
	queued  []bool

	// groups are set-partitioning constraints: all-binary, unit coefficients, = 1
	groups    [][]int
	ungrouped []int
	inGroup   []bool

	incumbent    []float64
	best         float64
	hasIncumbent bool
	rootBound    float64

	nodes    int
	maxNodes int
	limitHit bool
	stopped  bool
	err      error
}

func newSearch(ctx context.Context, m *lp.Model, maxNodes int) *search {
	n := len(m.Vars)
	s := &search{
		ctx:      ctx,
		m:        m,
		lo:       make([]float64, n),
		hi:       make([]float64, n),
		varRows:  make([][]int, n),
		maxNodes: maxNodes,
		best:     math.Inf(-1),
	}
	for i, v := range m.Vars {
		s.lo[i] = math.Ceil(v.Lower - eps)
		s.hi[i] = math.Floor(v.Upper + eps)
	}

	grouped := make([]bool, n)
	for _, c := range m.Constraints {
		switch c.Sense {
		case lp.LessEqual:
			s.addRow(c.Terms, c.RHS)
		case lp.GreaterEqual:
			s.addRow(negateTerms(c.Terms), -c.RHS)
		case lp.Equal:
			s.addRow(c.Terms, c.RHS)
			s.addRow(negateTerms(c.Terms), -c.RHS)
			if isPartition(m, c, grouped) {
				group := make([]int, len(c.Terms))
				for i, t := range c.Terms {
					group[i] = t.Var
					grouped[t.Var] = true
				}
				s.groups = append(s.groups, group)
			}
		}
	}
	for i := range m.Vars {
		if !grouped[i] {
			s.ungrouped = append(s.ungrouped, i)
		}
	}
	s.inGroup = grouped
	s.queued = make([]bool, len(s.rows))

	return s
}

func (s *search) addRow(terms []lp.Term, rhs float64) {
	r := len(s.rows)
	s.rows = append(s.rows, row{terms: terms, rhs: rhs})
	for _, t := range terms {
		s.varRows[t.Var] = append(s.varRows[t.Var], r)
	}
}

func isPartition(m *lp.Model, c lp.Constraint, grouped []bool) bool {
	if len(c.Terms) == 0 || math.Abs(c.RHS-1) > eps {
		return false
	}
	seen := make(map[int]bool, len(c.Terms))
	for _, t := range c.Terms {
		if m.Vars[t.Var].Type != lp.Binary || math.Abs(t.Coef-1) > eps || grouped[t.Var] || seen[t.Var] {
			return false
		}
		seen[t.Var] = true
	}
	return true
}

func negateTerms(terms []lp.Term) []lp.Term {
	negated := make([]lp.Term, len(terms))
	for i, t := range terms {
		negated[i] = lp.Term{Var: t.Var, Coef: -t.Coef}
	}
	return negated
}

// setDomain narrows a variable and schedules its rows for propagation.
// It returns false when the domain becomes empty.
func (s *search) setDomain(v int, lo, hi float64) bool {
	if lo <= s.lo[v] && hi >= s.hi[v] {
		return true
	}
	s.trail = append(s.trail, change{v: v, lo: s.lo[v], hi: s.hi[v]})
	s.lo[v] = math.Max(lo, s.lo[v])
	s.hi[v] = math.Min(hi, s.hi[v])
	if s.lo[v] > s.hi[v] {
		return false
	}
	for _, r := range s.varRows[v] {
		if !s.queued[r] {
			s.queued[r] = true
			s.queue = append(s.queue, r)
		}
	}
	return true
}

func (s *search) undo(mark int) {
	for i := len(s.trail) - 1; i >= mark; i-- {
		c := s.trail[i]
		s.lo[c.v] = c.lo
		s.hi[c.v] = c.hi
	}
	s.trail = s.trail[:mark]
}

func (s *search) clearQueue() {
	for _, r := range s.queue {
		s.queued[r] = false
	}
	s.queue = s.queue[:0]
}

func (s *search) propagateAll() bool {
	for r := range s.rows {
		if !s.queued[r] {
			s.queued[r] = true
			s.queue = append(s.queue, r)
		}
	}
	return s.propagate()
}

// propagate tightens domains with the activity bounds of every queued row until a
// fixpoint is reached. It returns false on a proven conflict.
func (s *search) propagate() bool {
	for len(s.queue) > 0 {
		r := s.queue[len(s.queue)-1]
		s.queue = s.queue[:len(s.queue)-1]
		s.queued[r] = false

		if !s.propagateRow(s.rows[r]) {
			s.clearQueue()
			return false
		}
	}
	return true
}

func (s *search) propagateRow(r row) bool {
	minActivity := 0.0
	for _, t := range r.terms {
		if t.Coef > 0 {
			minActivity += t.Coef * s.lo[t.Var]
		} else {
			minActivity += t.Coef * s.hi[t.Var]
		}
	}

	slack := r.rhs - minActivity
	if slack < -eps {
		return false
	}

	for _, t := range r.terms {
		v := t.Var
		width := s.hi[v] - s.lo[v]
		if width == 0 {
			continue
		}
		if t.Coef > 0 {
			if t.Coef*width > slack+eps {
				if !s.setDomain(v, s.lo[v], s.lo[v]+math.Floor(slack/t.Coef+eps)) {
					return false
				}
			}
		} else if -t.Coef*width > slack+eps {
			if !s.setDomain(v, s.hi[v]-math.Floor(slack/-t.Coef+eps), s.hi[v]) {
				return false
			}
		}
	}
	return true
}

// upperBound is the best objective reachable from the current domains: each group
// contributes its best remaining variable, every other variable its best bound
func (s *search) upperBound() float64 {
	total := 0.0
	for _, group := range s.groups {
		best := math.Inf(-1)
		for _, v := range group {
			if s.hi[v] > 0.5 {
				best = math.Max(best, s.m.Vars[v].Objective)
			}
		}
		total += best
	}
	for _, v := range s.ungrouped {
		c := s.m.Vars[v].Objective
		total += math.Max(c*s.lo[v], c*s.hi[v])
	}
	return total
}

// branchVariable picks the best open variable of the first undecided group, then
// the first open ungrouped variable
func (s *search) branchVariable() (int, bool) {
	for _, group := range s.groups {
		pick := -1
		for _, v := range group {
			if s.lo[v] > 0.5 {
				pick = -1
				break
			}
			if s.hi[v] > 0.5 && (pick < 0 || s.m.Vars[v].Objective > s.m.Vars[pick].Objective) {
				pick = v
			}
		}
		if pick >= 0 {
			return pick, true
		}
	}
	for _, v := range s.ungrouped {
		if s.hi[v] > s.lo[v] {
			return v, true
		}
	}
	return 0, false
}

// children returns the domains to explore for v, most promising first
func (s *search) children(v int, grouped bool) [][2]float64 {
	lo, hi := s.lo[v], s.hi[v]
	if grouped || s.m.Vars[v].Objective > 0 {
		return [][2]float64{{hi, hi}, {lo, hi - 1}}
	}
	return [][2]float64{{lo, lo}, {lo + 1, hi}}
}

func (s *search) node() {
	if s.stopped {
		return
	}

	s.nodes++
	if s.nodes > s.maxNodes {
		s.limitHit = true
		s.stopped = true
		return
	}
	if s.nodes%1024 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.stopped = true
			return
		}
	}

	if s.hasIncumbent && s.upperBound() <= s.best+eps {
		return
	}

	v, open := s.branchVariable()
	if !open {
		s.leaf()
		return
	}

	for _, child := range s.children(v, s.inGroup[v]) {
		mark := len(s.trail)
		if s.setDomain(v, child[0], child[1]) && s.propagate() {
			s.node()
		} else {
			s.clearQueue()
		}
		s.undo(mark)
		if s.stopped {
			return
		}
	}
}

func (s *search) leaf() {
	values := make([]float64, len(s.lo))
	copy(values, s.lo)
	if s.m.Check(values, eps) != nil {
		return
	}

	objective := s.m.Objective(values)
	if s.hasIncumbent && objective <= s.best+eps {
		return
	}
	s.incumbent = values
	s.best = objective
	s.hasIncumbent = true

	if s.best >= s.rootBound-eps {
		s.stopped = true
	}
}
