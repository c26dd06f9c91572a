package candidates

import (
	"fmt"
	"sort"
	"time"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// Week is a Monday to Sunday week holding some optimization target dates
type Week struct {
	Start   time.Time
	Targets []string
}

// WeekStart returns the Monday of the week containing t
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// Dates returns the seven dates of the week
func (w Week) Dates() []string {
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = w.Start.AddDate(0, 0, i).Format(model.DateLayout)
	}
	return dates
}

// End returns the Sunday of the week
func (w Week) End() time.Time {
	return w.Start.AddDate(0, 0, 6)
}

// Key identifies the week by its Monday
func (w Week) Key() string {
	return w.Start.Format(model.DateLayout)
}

// IsTarget reports whether date is one of the week's optimization targets
func (w Week) IsTarget(date string) bool {
	for _, d := range w.Targets {
		if d == date {
			return true
		}
	}
	return false
}

// GroupByWeek parses the target dates and groups them by their containing week.
// Weeks and the dates within them are returned in calendar order; duplicate dates
// are dropped.
func GroupByWeek(dates []string) ([]Week, error) {
	byStart := make(map[string]*Week)
	seen := make(map[string]bool)

	for _, raw := range dates {
		t, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", raw, err)
		}
		date := t.Format(model.DateLayout)
		if seen[date] {
			continue
		}
		seen[date] = true

		start := WeekStart(t)
		key := start.Format(model.DateLayout)
		w, ok := byStart[key]
		if !ok {
			w = &Week{Start: start}
			byStart[key] = w
		}
		w.Targets = append(w.Targets, date)
	}

	weeks := make([]Week, 0, len(byStart))
	for _, w := range byStart {
		sort.Strings(w.Targets)
		weeks = append(weeks, *w)
	}
	sort.Slice(weeks, func(i, j int) bool {
		return weeks[i].Start.Before(weeks[j].Start)
	})

	return weeks, nil
}
