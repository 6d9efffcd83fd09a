// Package reference holds the static lookup data used by the estimation
// engine: accelerator profiles, grid carbon intensities and the energy price.
// The tables are fixed at build time and never mutated.
package reference

import "github.com/YumeNoTenshi/ecoscan/internal/models"

// EnergyPricePerKWh is the electricity price in EUR.
const EnergyPricePerKWh = 0.15

// HardwareLifespanYears is the refresh cycle embodied carbon is amortized over.
const HardwareLifespanYears = 4.0

var hardware = []models.HardwareProfile{
	{Model: "NVIDIA A100", PowerWatts: 400, EmbodiedCarbonKg: 1500},
	{Model: "NVIDIA V100", PowerWatts: 300, EmbodiedCarbonKg: 1200},
	{Model: "NVIDIA T4", PowerWatts: 70, EmbodiedCarbonKg: 300},
}

var regions = []models.RegionProfile{
	{Name: "France (Nuclear)", CarbonIntensity: 0.057},
	{Name: "USA (Virginia/Coal)", CarbonIntensity: 0.380},
	{Name: "China (Coal)", CarbonIntensity: 0.550},
	{Name: "Global Avg", CarbonIntensity: 0.475},
}

// Fallbacks used when a configuration names something the tables don't know.
// Training falls back to a moderate grid, inference to a high-carbon one.
var (
	DefaultHardware        = hardware[0]
	DefaultTrainingRegion  = regions[1]
	DefaultInferenceRegion = regions[3]
)

// Hardware returns the accelerator table in its fixed order.
func Hardware() []models.HardwareProfile {
	return append([]models.HardwareProfile(nil), hardware...)
}

// Regions returns the region table in its fixed order.
func Regions() []models.RegionProfile {
	return append([]models.RegionProfile(nil), regions...)
}

// LookupHardware finds an accelerator by model name.
func LookupHardware(model string) (models.HardwareProfile, bool) {
	for _, h := range hardware {
		if h.Model == model {
			return h, true
		}
	}
	return models.HardwareProfile{}, false
}

// LookupRegion finds a region by name.
func LookupRegion(name string) (models.RegionProfile, bool) {
	for _, r := range regions {
		if r.Name == name {
			return r, true
		}
	}
	return models.RegionProfile{}, false
}

// HardwareOrDefault resolves model, falling back to DefaultHardware.
func HardwareOrDefault(model string) models.HardwareProfile {
	if h, ok := LookupHardware(model); ok {
		return h
	}
	return DefaultHardware
}

// TrainingRegionOrDefault resolves name, falling back to DefaultTrainingRegion.
func TrainingRegionOrDefault(name string) models.RegionProfile {
	if r, ok := LookupRegion(name); ok {
		return r
	}
	return DefaultTrainingRegion
}

// InferenceRegionOrDefault resolves name, falling back to DefaultInferenceRegion.
func InferenceRegionOrDefault(name string) models.RegionProfile {
	if r, ok := LookupRegion(name); ok {
		return r
	}
	return DefaultInferenceRegion
}

// LowestCarbonRegion returns the region with the smallest carbon intensity.
// Ties keep table order.
func LowestCarbonRegion() models.RegionProfile {
	best := regions[0]
	for _, r := range regions[1:] {
		if r.CarbonIntensity < best.CarbonIntensity {
			best = r
		}
	}
	return best
}

// MostEfficientHardware returns the accelerator with the lowest power draw,
// using embodied carbon to break ties.
func MostEfficientHardware() models.HardwareProfile {
	best := hardware[0]
	for _, h := range hardware[1:] {
		if h.PowerWatts < best.PowerWatts ||
			(h.PowerWatts == best.PowerWatts && h.EmbodiedCarbonKg < best.EmbodiedCarbonKg) {
			best = h
		}
	}
	return best
}
