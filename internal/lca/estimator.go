// Package lca computes the lifecycle footprint of an AI workload.
//
// Training is a one-time cost. Inference is annualised from a single month of
// request volume and held constant over the project lifetime, so growing
// traffic is undercounted. Embodied carbon is amortised linearly against a
// fixed four-year hardware refresh cycle whatever the project length.
package lca

import (
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/reference"
)

// Grade thresholds on total kg CO2, checked from worst to best.
var gradeThresholds = []struct {
	above float64
	grade models.Grade
}{
	{10000, models.GradeE},
	{5000, models.GradeD},
	{2000, models.GradeC},
	{500, models.GradeB},
}

// Estimate maps a validated configuration to its lifecycle metrics. Unknown
// hardware or regions resolve to the reference fallbacks.
func Estimate(cfg models.WorkloadConfig) models.LifecycleMetrics {
	hw := reference.HardwareOrDefault(cfg.HardwareModel)
	training := reference.TrainingRegionOrDefault(cfg.TrainingRegion)
	inference := reference.InferenceRegionOrDefault(cfg.InferenceRegion)

	trainingEnergy := float64(cfg.GPUCount) * hw.PowerWatts * cfg.TrainingHours / 1000
	trainingCo2 := trainingEnergy * training.CarbonIntensity

	inferenceEnergy := (cfg.MonthlyRequests * cfg.AvgLatencySeconds * hw.PowerWatts / 3_600_000) * 12
	inferenceCo2 := inferenceEnergy * inference.CarbonIntensity

	embodiedCo2 := float64(cfg.GPUCount) * hw.EmbodiedCarbonKg * (cfg.ProjectLifetimeYears / reference.HardwareLifespanYears)

	totalCo2 := trainingCo2 + (inferenceCo2 * cfg.ProjectLifetimeYears) + embodiedCo2
	totalCost := (trainingEnergy + (inferenceEnergy * cfg.ProjectLifetimeYears)) * reference.EnergyPricePerKWh

	return models.LifecycleMetrics{
		TrainingEnergyKWh:  trainingEnergy,
		TrainingCo2Kg:      trainingCo2,
		InferenceEnergyKWh: inferenceEnergy,
		InferenceCo2Kg:     inferenceCo2,
		EmbodiedCo2Kg:      embodiedCo2,
		TotalCo2Kg:         totalCo2,
		TotalCostEuro:      totalCost,
		Grade:              GradeFor(totalCo2),
	}
}

// GradeFor returns the letter grade for a lifecycle total in kg CO2.
func GradeFor(totalCo2Kg float64) models.Grade {
	for _, t := range gradeThresholds {
		if totalCo2Kg > t.above {
			return t.grade
		}
	}
	return models.GradeA
}

// LifetimeInferenceCo2 returns the inference emissions over the whole project.
func LifetimeInferenceCo2(cfg models.WorkloadConfig, m models.LifecycleMetrics) float64 {
	return m.InferenceCo2Kg * cfg.ProjectLifetimeYears
}
