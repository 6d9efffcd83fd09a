// Package planner ranks the strategies still available to an assessment by
// the emissions they would save.
package planner

import (
	"sort"

	"github.com/YumeNoTenshi/ecoscan/internal/lca"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
)

// Step is the projected effect of applying one strategy to the current config.
type Step struct {
	StrategyID     string                  `json:"strategyId"`
	Title          string                  `json:"title"`
	Field          string                  `json:"field"`
	Priority       int                     `json:"priority"` // 1-10, 10 is the highest
	Co2SavingKg    float64                 `json:"co2SavingKg"`
	CostSavingEuro float64                 `json:"costSavingEuro"`
	Projected      models.LifecycleMetrics `json:"projected"`
}

// Plan is the ranked list of steps plus the projection of applying them all.
type Plan struct {
	Current  models.LifecycleMetrics `json:"current"`
	Steps    []Step                  `json:"steps"`
	Combined models.LifecycleMetrics `json:"combined"`
	Config   models.WorkloadConfig   `json:"combinedConfig"`
}

type PlannerConfig struct {
	MinCo2Saving float64 // steps saving less than this many kg CO2 are left out
}

type Planner struct {
	config PlannerConfig
}

func NewPlanner(config PlannerConfig) *Planner {
	return &Planner{config: config}
}

// Plan simulates every AVAILABLE strategy against current.
func (p *Planner) Plan(current, baseline models.WorkloadConfig) Plan {
	now := lca.Estimate(current)
	plan := Plan{Current: now, Steps: []Step{}}

	combined := current.Clone()
	for _, s := range strategy.All() {
		if s.Status(current, baseline) != strategy.StatusAvailable {
			continue
		}
		combined = s.Apply(combined, baseline)

		projected := lca.Estimate(s.Apply(current, baseline))
		co2Saving := now.TotalCo2Kg - projected.TotalCo2Kg
		if co2Saving < p.config.MinCo2Saving {
			continue
		}
		costSaving := now.TotalCostEuro - projected.TotalCostEuro
		plan.Steps = append(plan.Steps, Step{
			StrategyID:     s.ID,
			Title:          s.Title,
			Field:          s.Field,
			Priority:       p.calculatePriority(co2Saving, costSaving, now.TotalCo2Kg),
			Co2SavingKg:    co2Saving,
			CostSavingEuro: costSaving,
			Projected:      projected,
		})
	}

	sort.SliceStable(plan.Steps, func(i, j int) bool {
		return plan.Steps[i].Co2SavingKg > plan.Steps[j].Co2SavingKg
	})

	plan.Config = combined
	plan.Combined = lca.Estimate(combined)
	return plan
}

func (p *Planner) calculatePriority(co2Saving, costSaving, total float64) int {
	if total <= 0 {
		return 1
	}
	// Share of the current footprint removed, on a 0-10 scale.
	priority := int((co2Saving / total) * 10)

	// Steps that raise the energy bill rank lower.
	if costSaving < 0 {
		priority -= 2
	}

	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return priority
}
