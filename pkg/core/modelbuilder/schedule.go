package modelbuilder

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// ClosingSchedule tells which closing sites require coverage on a date
type ClosingSchedule struct {
	sites []config.ClosingSite
}

// NewClosingSchedule validates the rrule of every closing site
func NewClosingSchedule(sites []config.ClosingSite) (*ClosingSchedule, error) {
	for i, site := range sites {
		if _, err := rrule.StrToRRule(site.RRule); err != nil {
			return nil, fmt.Errorf("failed to parse rrule for closing site %d: %w", i, err)
		}
	}
	return &ClosingSchedule{sites: sites}, nil
}

// SitesOn returns the location ids of the closing sites whose rule matches date
func (c *ClosingSchedule) SitesOn(date string) ([]string, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	// Rules are anchored one week before the date
	searchStart := day.AddDate(0, 0, -7)
	dayEnd := day.Add(24*time.Hour - time.Second)

	var locationIDs []string
	for i, site := range c.sites {
		// Parse per call: DTStart mutates the rule and weeks are built concurrently
		rule, err := rrule.StrToRRule(site.RRule)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rrule for closing site %d: %w", i, err)
		}
		rule.DTStart(searchStart)

		if len(rule.Between(day, dayEnd, true)) > 0 {
			locationIDs = append(locationIDs, site.LocationID)
		}
	}
	return locationIDs, nil
}
