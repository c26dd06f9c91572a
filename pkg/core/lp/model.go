// Package lp holds the integer linear model handed to the solver
package lp

import (
	"fmt"
	"math"
)

// VarType is the domain of a variable
type VarType int

const (
	Binary VarType = iota
	Integer
)

// Variable is a bounded integer decision variable
type Variable struct {
	Name      string
	Type      VarType
	Lower     float64
	Upper     float64
	Objective float64
}

// Sense is the relation of a constraint
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return "<="
	}
}

// Term is a coefficient applied to a variable index
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear constraint sum(terms) <sense> RHS
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Expr is a linear expression with a constant
type Expr struct {
	Terms    []Term
	Constant float64
}

// Add appends a term to the expression
func (e *Expr) Add(v int, coef float64) {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
}

// Bounds returns the smallest and largest values the expression can take given the
// variable bounds of m
func (e Expr) Bounds(m *Model) (float64, float64) {
	lo, hi := e.Constant, e.Constant
	for _, t := range e.Terms {
		v := m.Vars[t.Var]
		a, b := t.Coef*v.Lower, t.Coef*v.Upper
		lo += math.Min(a, b)
		hi += math.Max(a, b)
	}
	return lo, hi
}

// Model is a maximization problem over bounded integer variables
type Model struct {
	Vars        []Variable
	Constraints []Constraint
	index       map[string]int
}

// NewModel creates an empty maximization model
func NewModel() *Model {
	return &Model{index: make(map[string]int)}
}

// AddBinary adds a 0/1 variable and returns its index. Adding a name twice returns
// the existing variable.
func (m *Model) AddBinary(name string, objective float64) int {
	return m.addVar(Variable{Name: name, Type: Binary, Lower: 0, Upper: 1, Objective: objective})
}

// AddInteger adds an integer variable bounded by [lower, upper]
func (m *Model) AddInteger(name string, lower, upper, objective float64) int {
	return m.addVar(Variable{Name: name, Type: Integer, Lower: lower, Upper: upper, Objective: objective})
}

func (m *Model) addVar(v Variable) int {
	if i, ok := m.index[v.Name]; ok {
		return i
	}
	m.Vars = append(m.Vars, v)
	i := len(m.Vars) - 1
	m.index[v.Name] = i
	return i
}

// Index returns the index of a named variable
func (m *Model) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// AddConstraint adds sum(terms) <sense> rhs. A constraint without terms is kept: it
// compares 0 with rhs and makes the model infeasible when that fails.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// AddExprConstraint adds expr <sense> rhs, moving the expression constant to the right
func (m *Model) AddExprConstraint(name string, expr Expr, sense Sense, rhs float64) {
	m.AddConstraint(name, expr.Terms, sense, rhs-expr.Constant)
}

// Objective evaluates the objective at the given point
func (m *Model) Objective(values []float64) float64 {
	total := 0.0
	for i, v := range m.Vars {
		total += v.Objective * values[i]
	}
	return total
}

// Check returns an error naming the first bound or constraint violated by values
func (m *Model) Check(values []float64, tol float64) error {
	if len(values) != len(m.Vars) {
		return fmt.Errorf("expected %d values, got %d", len(m.Vars), len(values))
	}
	for i, v := range m.Vars {
		x := values[i]
		if x < v.Lower-tol || x > v.Upper+tol || math.Abs(x-math.Round(x)) > tol {
			return fmt.Errorf("variable %s = %g outside its domain", v.Name, x)
		}
	}
	for _, c := range m.Constraints {
		activity := 0.0
		for _, t := range c.Terms {
			activity += t.Coef * values[t.Var]
		}
		violated := false
		switch c.Sense {
		case LessEqual:
			violated = activity > c.RHS+tol
		case GreaterEqual:
			violated = activity < c.RHS-tol
		case Equal:
			violated = math.Abs(activity-c.RHS) > tol
		}
		if violated {
			return fmt.Errorf("constraint %s violated: %g %s %g", c.Name, activity, c.Sense, c.RHS)
		}
	}
	return nil
}
