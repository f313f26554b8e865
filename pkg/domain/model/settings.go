package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// CostRates are the financial assumptions behind cost-of-delay and ROI
// estimates. They are user-supplied or benchmark constants loaded from
// configuration, never measured facts.
type CostRates struct {
	ContractorDailyCost   float64            `toml:"contractor_daily_cost"`
	InternalDailyCost     float64            `toml:"internal_daily_cost"`
	RevenuePerPersonDaily float64            `toml:"revenue_per_person_daily"`
	PriorityMultipliers   map[string]float64 `toml:"priority_multipliers"`
}

// DefaultCostRates returns benchmark rates for a blended software team
func DefaultCostRates() CostRates {
	return CostRates{
		ContractorDailyCost:   160,
		InternalDailyCost:     280,
		RevenuePerPersonDaily: 656,
		PriorityMultipliers: map[string]float64{
			"Highest": 10,
			"High":    5,
			"Medium":  2,
			"Low":     1,
			"Lowest":  1,
		},
	}
}

// Validate checks that the rates are usable
func (r *CostRates) Validate() error {
	if r.ContractorDailyCost < 0 || r.InternalDailyCost < 0 {
		return goerr.New("daily costs must not be negative")
	}
	if r.RevenuePerPersonDaily < 0 {
		return goerr.New("revenue per person-day must not be negative")
	}
	return nil
}

// DailyCost returns the daily cost for a cohort. Unknown cohorts get
// the blended rate.
func (r *CostRates) DailyCost(cohort types.Cohort) float64 {
	switch cohort {
	case types.CohortContractor:
		return r.ContractorDailyCost
	case types.CohortInternal:
		return r.InternalDailyCost
	default:
		return (r.ContractorDailyCost + r.InternalDailyCost) / 2
	}
}

// PriorityMultiplier returns the WSJF-style weight for a priority
// name, defaulting to the Medium weight.
func (r *CostRates) PriorityMultiplier(priority string) float64 {
	if m, ok := r.PriorityMultipliers[priority]; ok {
		return m
	}
	if m, ok := r.PriorityMultipliers["Medium"]; ok {
		return m
	}
	return 1
}

// AnalyticsSettings are the tunable thresholds of the analytics engine
type AnalyticsSettings struct {
	StaleDays         int      `toml:"stale_days"`
	OverloadMultiple  float64  `toml:"overload_multiple"`
	UnderloadFraction float64  `toml:"underload_fraction"`
	VelocityDeadZone  float64  `toml:"velocity_dead_zone"`
	WaitingStatuses   []string `toml:"waiting_statuses"`
}

// DefaultAnalyticsSettings returns the default thresholds
func DefaultAnalyticsSettings() AnalyticsSettings {
	return AnalyticsSettings{
		StaleDays:         14,
		OverloadMultiple:  2.0,
		UnderloadFraction: 0.25,
		VelocityDeadZone:  0.05,
		WaitingStatuses:   []string{"waiting", "blocked", "on hold", "pending", "paused"},
	}
}
