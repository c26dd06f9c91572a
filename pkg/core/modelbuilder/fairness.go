package modelbuilder

import (
	"fmt"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/lp"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/scoring"
)

// Weekly counters tracked per staff member
const (
	counterPrimary   = "primary"
	counterSecondary = "secondary"
	counterCluster   = "cluster"
)

// addFairness builds, per staff member, integer counters of the days spent as primary
// closer, as secondary closer and in the low-preference cluster, then attaches the
// escalation tiers of every fairness rule to a weighted sum of those counters.
// Counters start from the days already recorded in state for non-target dates.
func (b *Builder) addFairness(build *Build, snap *candidates.Snapshot, days []*dayContext, state scoring.FairnessState) {
	if len(b.cfg.Fairness.Rules) == 0 {
		return
	}

	m := build.Model
	indicators := lp.NewIndicatorBuilder(m)

	cluster := make(map[string]bool, len(b.cfg.Fairness.LowPreferenceCluster))
	for _, id := range b.cfg.Fairness.LowPreferenceCluster {
		cluster[id] = true
	}

	used := b.usedCounters()

	for _, staffID := range snap.StaffIDs {
		counters := make(map[string]lp.Expr)

		// Step 1: Daily indicators summed into counters
		for _, name := range []string{counterPrimary, counterSecondary, counterCluster} {
			if !used[name] {
				continue
			}
			var dailyTerms []lp.Term
			for _, day := range days {
				expr := dayExpr(day, staffID, name, cluster)
				if len(expr.Terms) == 0 {
					continue
				}
				indicatorName := fmt.Sprintf("ind|%s|%s|%s", name, day.date, staffID)
				y := indicators.Activity(indicatorName, expr, indicators.BigM(expr, 1))
				dailyTerms = append(dailyTerms, lp.Term{Var: y, Coef: 1})
			}
			if len(dailyTerms) == 0 {
				continue
			}

			cnt := m.AddInteger(fmt.Sprintf("cnt|%s|%s", name, staffID), 0, float64(len(dailyTerms)), 0)
			link := append([]lp.Term{{Var: cnt, Coef: 1}}, negate(dailyTerms)...)
			m.AddConstraint(fmt.Sprintf("cnt|%s|%s", name, staffID), link, lp.Equal, 0)

			counters[name] = lp.Expr{
				Terms:    []lp.Term{{Var: cnt, Coef: 1}},
				Constant: float64(seedCount(state, staffID, name, b.cfg.Fairness.LowPreferenceCluster)),
			}
		}
		if len(counters) == 0 {
			continue
		}

		// Step 2: Escalation tiers over the weighted counters
		for _, rule := range b.cfg.Fairness.Rules {
			weighted := weightedSum(rule, counters)
			if len(weighted.Terms) == 0 {
				continue
			}
			tiers := make([]lp.Tier, len(rule.Tiers))
			for i, tier := range rule.Tiers {
				tiers[i] = lp.Tier{Threshold: tier.Threshold, Penalty: tier.Penalty}
			}
			bigM := indicators.BigM(weighted, tiers[0].Threshold)
			indicators.Tiers(fmt.Sprintf("tier|%s|%s", rule.Name, staffID), weighted, tiers, bigM)
		}
	}
}

// usedCounters reports which counters carry a weight in at least one rule
func (b *Builder) usedCounters() map[string]bool {
	used := make(map[string]bool)
	for _, rule := range b.cfg.Fairness.Rules {
		if rule.PrimaryWeight > 0 {
			used[counterPrimary] = true
		}
		if rule.SecondaryWeight > 0 {
			used[counterSecondary] = true
		}
		if rule.ClusterWeight > 0 {
			used[counterCluster] = true
		}
	}
	return used
}

// dayExpr is the non-negative expression whose activity marks a counted day
func dayExpr(day *dayContext, staffID, counter string, cluster map[string]bool) lp.Expr {
	var expr lp.Expr
	switch counter {
	case counterPrimary, counterSecondary:
		role := model.ClosingPrimary
		if counter == counterSecondary {
			role = model.ClosingSecondary
		}
		for _, rv := range day.roles {
			if rv.StaffID == staffID && rv.Role == role {
				expr.Add(rv.Var, 1)
			}
		}
	case counterCluster:
		if len(cluster) == 0 {
			return expr
		}
		for _, cv := range day.combos {
			if cv.Combo.Key.StaffID == staffID && cv.Combo.Touches(cluster) {
				expr.Add(cv.Var, 1)
			}
		}
	}
	return expr
}

func seedCount(state scoring.FairnessState, staffID, counter string, cluster []string) int {
	switch counter {
	case counterPrimary:
		return state.ClosingDays(staffID, model.ClosingPrimary)
	case counterSecondary:
		return state.ClosingDays(staffID, model.ClosingSecondary)
	default:
		return state.ClusterDays(staffID, cluster)
	}
}

func weightedSum(rule config.EscalationRule, counters map[string]lp.Expr) lp.Expr {
	weights := map[string]float64{
		counterPrimary:   rule.PrimaryWeight,
		counterSecondary: rule.SecondaryWeight,
		counterCluster:   rule.ClusterWeight,
	}

	var sum lp.Expr
	for _, name := range []string{counterPrimary, counterSecondary, counterCluster} {
		counter, ok := counters[name]
		if !ok || weights[name] == 0 {
			continue
		}
		for _, t := range counter.Terms {
			sum.Add(t.Var, t.Coef*weights[name])
		}
		sum.Constant += counter.Constant * weights[name]
	}
	return sum
}
