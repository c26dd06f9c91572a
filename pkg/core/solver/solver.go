// Package solver finds optimal assignments for lp models
package solver

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/lp"
)

// ErrNodeLimit is returned when the search exhausts its node budget before finding
// any feasible assignment
var ErrNodeLimit = errors.New("node limit reached without a feasible solution")

// Status describes the outcome of a solve
type Status int

const (
	// StatusOptimal means the returned assignment is proven optimal
	StatusOptimal Status = iota
	// StatusFeasible means the search stopped at its node limit with a feasible assignment
	StatusFeasible
	// StatusInfeasible means no assignment satisfies the constraints, or the model is
	// numerically invalid
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	default:
		return "infeasible"
	}
}

// Result is the outcome of a solve
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Bound     float64
	Duration  time.Duration
	Reason    string
}

// Selected reports whether a binary variable is set in the result
func (r *Result) Selected(v int) bool {
	return r.Values != nil && r.Values[v] > 0.5
}

// Solver maximizes an lp model
type Solver interface {
	Solve(ctx context.Context, m *lp.Model) (*Result, error)
}

// Options controls the branch-and-bound search
type Options struct {
	MaxNodes int

	// UseRelaxation computes an LP relaxation bound at the root to stop the search as
	// soon as an assignment reaches it
	UseRelaxation          bool
	MaxRelaxationVariables int
}

// BranchAndBound is an exact depth-first solver for models over bounded integer
// variables. Constraint propagation tightens variable domains at every node.
type BranchAndBound struct {
	opts   Options
	logger *zap.Logger
}

var _ Solver = (*BranchAndBound)(nil)

// NewBranchAndBound creates a solver
func NewBranchAndBound(opts Options, logger *zap.Logger) *BranchAndBound {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = 1_000_000
	}
	return &BranchAndBound{opts: opts, logger: logger}
}

// Solve maximizes the model objective
func (b *BranchAndBound) Solve(ctx context.Context, m *lp.Model) (*Result, error) {
	start := time.Now()

	if reason := invalidModel(m); reason != "" {
		b.logger.Warn("Refusing numerically invalid model", zap.String("reason", reason))
		return &Result{Status: StatusInfeasible, Reason: reason, Duration: time.Since(start)}, nil
	}

	s := newSearch(ctx, m, b.opts.MaxNodes)

	// Step 1: Root propagation
	if !s.propagateAll() {
		return &Result{Status: StatusInfeasible, Reason: "infeasible at root", Duration: time.Since(start)}, nil
	}

	// Step 2: Optional LP relaxation bound on the propagated root domains
	s.rootBound = math.Inf(1)
	if b.opts.UseRelaxation {
		if bound, ok := RelaxationBound(m, s.lo, s.hi, b.opts.MaxRelaxationVariables); ok {
			s.rootBound = bound
			b.logger.Debug("Computed root relaxation bound", zap.Float64("bound", bound))
		}
	}

	// Step 3: Depth-first search
	s.node()
	if s.err != nil {
		return nil, s.err
	}

	result := &Result{
		Nodes:    s.nodes,
		Bound:    s.rootBound,
		Duration: time.Since(start),
	}

	switch {
	case !s.hasIncumbent && s.limitHit:
		return nil, ErrNodeLimit
	case !s.hasIncumbent:
		result.Status = StatusInfeasible
		result.Reason = "no assignment satisfies the constraints"
		return result, nil
	case s.limitHit:
		result.Status = StatusFeasible
	default:
		result.Status = StatusOptimal
	}

	result.Values = s.incumbent
	result.Objective = m.Objective(s.incumbent)
	if math.IsNaN(result.Objective) || math.IsInf(result.Objective, 0) {
		return &Result{Status: StatusInfeasible, Reason: "non-finite objective", Nodes: s.nodes, Duration: time.Since(start)}, nil
	}

	b.logger.Debug("Search finished",
		zap.String("status", result.Status.String()),
		zap.Float64("objective", result.Objective),
		zap.Int("nodes", result.Nodes),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func invalidModel(m *lp.Model) string {
	for _, v := range m.Vars {
		if !finite(v.Objective) {
			return "non-finite objective coefficient on " + v.Name
		}
		if !finite(v.Lower) || !finite(v.Upper) {
			return "unbounded variable " + v.Name
		}
		if v.Lower > v.Upper {
			return "empty domain on " + v.Name
		}
	}
	for _, c := range m.Constraints {
		if !finite(c.RHS) {
			return "non-finite right-hand side on " + c.Name
		}
		for _, t := range c.Terms {
			if !finite(t.Coef) {
				return "non-finite coefficient in " + c.Name
			}
		}
	}
	return ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
