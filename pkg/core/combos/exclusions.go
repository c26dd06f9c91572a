package combos

import (
	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
)

type category struct {
	locations map[string]bool
	rooms     map[string]bool
}

func (c category) contains(n *demand.Need) bool {
	if n == nil {
		return false
	}
	if c.locations[n.LocationID] {
		return true
	}
	return n.RoomID != "" && c.rooms[n.RoomID]
}

type restriction struct {
	category   string
	alternates map[string]bool
}

// ExclusionRules decides which pairs of needs may share one staff member's day.
// Rules are built from configuration; administrative halves are never excluded.
type ExclusionRules struct {
	categories map[string]category
	forbidden  []config.CategoryPair
	restricted []restriction
}

// NewExclusionRules builds the lookup sets of the configured categories
func NewExclusionRules(cfg config.ExclusionConfig) *ExclusionRules {
	rules := &ExclusionRules{
		categories: make(map[string]category, len(cfg.Categories)),
		forbidden:  cfg.ForbiddenPairs,
	}

	for _, c := range cfg.Categories {
		cat := category{
			locations: make(map[string]bool, len(c.LocationIDs)),
			rooms:     make(map[string]bool, len(c.RoomIDs)),
		}
		for _, id := range c.LocationIDs {
			cat.locations[id] = true
		}
		for _, id := range c.RoomIDs {
			cat.rooms[id] = true
		}
		rules.categories[c.Name] = cat
	}

	for _, r := range cfg.Restricted {
		alternates := make(map[string]bool, len(r.AlternateLocationIDs))
		for _, id := range r.AlternateLocationIDs {
			alternates[id] = true
		}
		rules.restricted = append(rules.restricted, restriction{category: r.Category, alternates: alternates})
	}

	return rules
}

// Allowed reports whether morning and afternoon may be combined. Nil means
// administrative.
func (r *ExclusionRules) Allowed(morning, afternoon *demand.Need) bool {
	if morning == nil || afternoon == nil {
		return true
	}

	for _, pair := range r.forbidden {
		a, b := r.categories[pair.A], r.categories[pair.B]
		if (a.contains(morning) && b.contains(afternoon)) || (b.contains(morning) && a.contains(afternoon)) {
			return false
		}
	}

	for _, restricted := range r.restricted {
		cat := r.categories[restricted.category]
		if cat.contains(morning) && !restricted.compatible(cat, afternoon) {
			return false
		}
		if cat.contains(afternoon) && !restricted.compatible(cat, morning) {
			return false
		}
	}

	return true
}

// compatible reports whether other may share a day with a need of the restricted
// category: another need of the category or one of the alternate sites
func (r restriction) compatible(cat category, other *demand.Need) bool {
	return cat.contains(other) || r.alternates[other.LocationID]
}
