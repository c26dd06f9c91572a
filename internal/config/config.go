package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// Operating modes
const (
	ModeDaily  = "daily"
	ModeWeekly = "weekly"
)

// DefaultStaffingCoefficient is the number of staff one doctor's half-day activity
// requires when the demand row carries no coefficient of its own
const DefaultStaffingCoefficient = 1.2

// Config represents the planner configuration
type Config struct {
	DatabaseURL   string `yaml:"databaseURL" validate:"required"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDB,omitempty" validate:"min=0"`

	// Mode selects the per-day (legacy) or per-week model builder
	Mode string `yaml:"mode" validate:"oneof=daily weekly"`

	Demand     DemandConfig    `yaml:"demand"`
	Scoring    ScoringConfig   `yaml:"scoring"`
	Closing    ClosingConfig   `yaml:"closing"`
	Exclusions ExclusionConfig `yaml:"exclusions"`
	Fairness   FairnessConfig  `yaml:"fairness"`
	Solver     SolverConfig    `yaml:"solver"`
}

// DemandConfig controls demand calculation
type DemandConfig struct {
	// DefaultCoefficient applies to demand rows without a coefficient.
	// Nil means rows without a coefficient are rejected.
	DefaultCoefficient *float64 `yaml:"defaultCoefficient" validate:"omitempty,gt=0"`

	// SurgicalBlockNames identifies the surgical block location(s) by name; their
	// location demand is ignored because sessions already cover them
	SurgicalBlockNames []string `yaml:"surgicalBlockNames"`
}

// ScoringConfig holds the preference scores and penalties used to rank combos
type ScoringConfig struct {
	RolePreferenceScores     map[int]float64 `yaml:"rolePreferenceScores"`
	DoctorPreferenceScores   map[int]float64 `yaml:"doctorPreferenceScores"`
	LocationPreferenceScores map[int]float64 `yaml:"locationPreferenceScores"`

	Admin      AdminConfig      `yaml:"admin"`
	Overload   OverloadConfig   `yaml:"overload"`
	SiteChange SiteChangeConfig `yaml:"siteChange"`

	// RetentionBonus is granted per half-day that keeps its current assignment (preview only)
	RetentionBonus float64 `yaml:"retentionBonus" validate:"min=0"`
}

// AdminConfig holds the administrative half-day bonuses.
// The daily and weekly builders historically used different target bonuses; both
// are kept as found.
type AdminConfig struct {
	DailyTargetBonus  float64 `yaml:"dailyTargetBonus" validate:"min=0"`
	WeeklyTargetBonus float64 `yaml:"weeklyTargetBonus" validate:"min=0"`
	AtTargetBonus     float64 `yaml:"atTargetBonus" validate:"min=0"`
	DecayBase         float64 `yaml:"decayBase" validate:"min=0"`
}

// OverloadConfig controls the penalty for repeatedly using a low-preference site
type OverloadConfig struct {
	// LowPreferenceRank is the first location rank considered low preference
	LowPreferenceRank int `yaml:"lowPreferenceRank" validate:"min=1,max=4"`

	// DistinctDayThreshold is the number of distinct days after which reuse is penalised
	DistinctDayThreshold int     `yaml:"distinctDayThreshold" validate:"min=1"`
	PenaltyUnit          float64 `yaml:"penaltyUnit" validate:"min=0"`

	// EscalationStep and MaxEscalation shape the historical factor derived from the previous week
	EscalationStep float64 `yaml:"escalationStep" validate:"min=0"`
	MaxEscalation  float64 `yaml:"maxEscalation" validate:"min=1"`
}

// SiteChangeConfig controls the penalty for working at two sites on the same day
type SiteChangeConfig struct {
	Penalty               float64  `yaml:"penalty" validate:"min=0"`
	HighFrictionPenalty   float64  `yaml:"highFrictionPenalty" validate:"min=0"`
	HighFrictionLocations []string `yaml:"highFrictionLocations"`
}

// ClosingConfig lists the sites requiring end-of-day coverage roles
type ClosingConfig struct {
	Sites []ClosingSite `yaml:"sites" validate:"dive"`

	// MinimumCandidates is the number of full-day (or half-day) people a closing site needs
	MinimumCandidates int `yaml:"minimumCandidates" validate:"min=2"`

	// Daily mode penalties per role, multiplied by 1 + roles already held this week
	DailyPrimaryPenalty   float64 `yaml:"dailyPrimaryPenalty" validate:"min=0"`
	DailySecondaryPenalty float64 `yaml:"dailySecondaryPenalty" validate:"min=0"`
}

// ClosingSite designates a location as closing on the dates matched by RRule
type ClosingSite struct {
	LocationID string `yaml:"locationID" validate:"required"`
	RRule      string `yaml:"rrule" validate:"required"`
}

// ExclusionConfig declares which room/site categories may share a staff member's day
type ExclusionConfig struct {
	Categories     []Category           `yaml:"categories" validate:"dive"`
	ForbiddenPairs []CategoryPair       `yaml:"forbiddenPairs" validate:"dive"`
	Restricted     []RestrictedCategory `yaml:"restricted" validate:"dive"`
}

// Category groups locations and/or operating rooms under one name
type Category struct {
	Name        string   `yaml:"name" validate:"required"`
	LocationIDs []string `yaml:"locationIDs,omitempty"`
	RoomIDs     []string `yaml:"roomIDs,omitempty"`
}

// CategoryPair forbids a need of category A and a need of category B in the same day
type CategoryPair struct {
	A string `yaml:"a" validate:"required"`
	B string `yaml:"b" validate:"required"`
}

// RestrictedCategory may only share a day with administrative time, its own
// category or one of the alternate locations
type RestrictedCategory struct {
	Category             string   `yaml:"category" validate:"required"`
	AlternateLocationIDs []string `yaml:"alternateLocationIDs,omitempty"`
}

// FairnessConfig controls the weekly in-model escalation
type FairnessConfig struct {
	// LowPreferenceCluster lists the locations counted as the low-preference cluster
	LowPreferenceCluster []string         `yaml:"lowPreferenceCluster"`
	Rules                []EscalationRule `yaml:"rules" validate:"dive"`
}

// EscalationRule penalises a staff member once a weighted combination of their
// weekly counters crosses one of the tier thresholds
type EscalationRule struct {
	Name            string  `yaml:"name" validate:"required"`
	PrimaryWeight   float64 `yaml:"primaryWeight" validate:"min=0"`
	SecondaryWeight float64 `yaml:"secondaryWeight" validate:"min=0"`
	ClusterWeight   float64 `yaml:"clusterWeight" validate:"min=0"`
	Tiers           []Tier  `yaml:"tiers" validate:"required,min=1,dive"`
}

// Tier is one step of an escalation rule
type Tier struct {
	Threshold float64 `yaml:"threshold" validate:"gt=0"`
	Penalty   float64 `yaml:"penalty" validate:"min=0"`
}

// SolverConfig controls the branch-and-bound search
type SolverConfig struct {
	MaxNodes               int  `yaml:"maxNodes" validate:"min=1"`
	UseRelaxation          bool `yaml:"useRelaxation"`
	MaxRelaxationVariables int  `yaml:"maxRelaxationVariables" validate:"min=0"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns a configuration holding every tuned constant. Files loaded with
// Load override individual values.
func Default() *Config {
	coefficient := DefaultStaffingCoefficient
	return &Config{
		Mode: ModeDaily,
		Demand: DemandConfig{
			DefaultCoefficient: &coefficient,
			SurgicalBlockNames: []string{"Bloc opératoire"},
		},
		Scoring: ScoringConfig{
			RolePreferenceScores:     map[int]float64{1: 150, 2: 130, 3: 110},
			DoctorPreferenceScores:   map[int]float64{1: 140, 2: 120},
			LocationPreferenceScores: map[int]float64{1: 150, 2: 120, 3: 90, 4: 60},
			Admin: AdminConfig{
				DailyTargetBonus:  100,
				WeeklyTargetBonus: 90,
				AtTargetBonus:     0.5,
				DecayBase:         10,
			},
			Overload: OverloadConfig{
				LowPreferenceRank:    3,
				DistinctDayThreshold: 2,
				PenaltyUnit:          30,
				EscalationStep:       0.25,
				MaxEscalation:        2,
			},
			SiteChange: SiteChangeConfig{
				Penalty:             10,
				HighFrictionPenalty: 40,
			},
			RetentionBonus: 15,
		},
		Closing: ClosingConfig{
			MinimumCandidates:     2,
			DailyPrimaryPenalty:   10,
			DailySecondaryPenalty: 8,
		},
		Fairness: FairnessConfig{
			Rules: []EscalationRule{
				{
					Name:            "closing",
					PrimaryWeight:   10,
					SecondaryWeight: 7,
					Tiers: []Tier{
						{Threshold: 22, Penalty: 100},
						{Threshold: 29, Penalty: 300},
						{Threshold: 31, Penalty: 600},
						{Threshold: 35, Penalty: 1000},
					},
				},
				{
					Name:          "low_preference_cluster",
					ClusterWeight: 1,
					Tiers: []Tier{
						{Threshold: 2, Penalty: 50},
						{Threshold: 3, Penalty: 150},
						{Threshold: 4, Penalty: 300},
					},
				},
			},
		},
		Solver: SolverConfig{
			MaxNodes:               2_000_000,
			UseRelaxation:          true,
			MaxRelaxationVariables: 600,
		},
	}
}

// Load loads and validates the configuration from planner_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	configPath, err := findConfigFile("planner_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadWithEnv loads planner_config_<env>.yaml, falling back to planner_config.yaml
func LoadWithEnv(env string) (*Config, error) {
	if env == "" {
		return Load()
	}

	configPath, err := findConfigFile(fmt.Sprintf("planner_config_%s.yaml", env))
	if err != nil {
		return Load()
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
// Values absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration struct, rrule syntax and cross references
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Validate rrule syntax for each closing site
	for i, site := range cfg.Closing.Sites {
		if _, err := rrule.StrToRRule(site.RRule); err != nil {
			return fmt.Errorf("invalid rrule in closing.sites[%d]: %w", i, err)
		}
	}

	// Exclusion rules must reference declared categories
	declared := make(map[string]bool, len(cfg.Exclusions.Categories))
	for _, category := range cfg.Exclusions.Categories {
		if declared[category.Name] {
			return fmt.Errorf("duplicate exclusion category %q", category.Name)
		}
		declared[category.Name] = true
	}
	for i, pair := range cfg.Exclusions.ForbiddenPairs {
		if !declared[pair.A] || !declared[pair.B] {
			return fmt.Errorf("exclusions.forbiddenPairs[%d] references an undeclared category", i)
		}
	}
	for i, restricted := range cfg.Exclusions.Restricted {
		if !declared[restricted.Category] {
			return fmt.Errorf("exclusions.restricted[%d] references undeclared category %q", i, restricted.Category)
		}
	}

	// Tier thresholds must be strictly increasing
	for _, rule := range cfg.Fairness.Rules {
		thresholds := make([]float64, len(rule.Tiers))
		for i, tier := range rule.Tiers {
			thresholds[i] = tier.Threshold
		}
		if !slices.IsSorted(thresholds) || len(slices.Compact(slices.Clone(thresholds))) != len(thresholds) {
			return fmt.Errorf("fairness rule %q: tier thresholds must be strictly increasing", rule.Name)
		}
	}

	return nil
}

// findConfigFile searches for the named file in current directory and home directory
func findConfigFile(configFileName string) (string, error) {
	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file %s not found in current directory or home directory", configFileName)
}
