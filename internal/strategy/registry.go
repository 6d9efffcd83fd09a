// Package strategy is the fixed catalogue of optimization interventions.
//
// A strategy is a stateless descriptor evaluated against an explicit
// (current, baseline) pair. Its status is always derived, never stored.
package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/reference"
)

// ErrUnknown is returned when a strategy id is not in the catalogue.
var ErrUnknown = errors.New("unknown strategy")

// Status is the three-way state of a strategy for a session.
type Status string

const (
	StatusBaselineOptimal Status = "BASELINE_OPTIMAL"
	StatusApplied         Status = "APPLIED"
	StatusAvailable       Status = "AVAILABLE"
)

// Action is what a toggle did.
type Action string

const (
	ActionApply  Action = "apply"
	ActionRevert Action = "revert"
	ActionNone   Action = "none"
)

// Strategy describes one intervention on a single configuration field.
type Strategy struct {
	ID    string
	Title string
	Field string

	describe    func(baseline models.WorkloadConfig) string
	isOptimized func(current, baseline models.WorkloadConfig) bool
	atBaseline  func(current, baseline models.WorkloadConfig) bool
	apply       func(current, baseline models.WorkloadConfig) models.WorkloadConfig
	revert      func(current, baseline models.WorkloadConfig) models.WorkloadConfig
}

// Evaluation is a strategy's derived state for one (current, baseline) pair.
type Evaluation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Field        string `json:"field"`
	Description  string `json:"description"`
	IsOptimized  bool   `json:"isOptimized"`
	IsAtBaseline bool   `json:"isAtBaseline"`
	Status       Status `json:"status"`
}

// Predicate tolerance bands. They sit slightly above the apply factors so a
// rounded or re-entered value still counts as optimized.
const (
	quantizationFactor    = 0.5
	quantizationTolerance = 0.51
	pruningFactor         = 0.7
	pruningTolerance      = 0.71
	rightsizingFactor     = 0.75
	rightsizingTolerance  = 0.76
)

var catalogue = []Strategy{
	{
		ID:    "training_region",
		Title: "Training Grid Decoupling",
		Field: "trainingRegion",
		describe: func(b models.WorkloadConfig) string {
			return fmt.Sprintf("Baseline uses %s. Migrate training to %s for a low-carbon grid.",
				b.TrainingRegion, reference.LowestCarbonRegion().Name)
		},
		isOptimized: func(c, _ models.WorkloadConfig) bool {
			return c.TrainingRegion == reference.LowestCarbonRegion().Name
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.TrainingRegion == b.TrainingRegion },
		apply: func(c, _ models.WorkloadConfig) models.WorkloadConfig {
			c.TrainingRegion = reference.LowestCarbonRegion().Name
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.TrainingRegion = b.TrainingRegion
			return c
		},
	},
	{
		ID:    "hardware",
		Title: "Hardware Efficiency Scaling",
		Field: "hardwareModel",
		describe: func(models.WorkloadConfig) string {
			return fmt.Sprintf("Switch to %s accelerators to reduce embodied carbon and wattage.",
				reference.MostEfficientHardware().Model)
		},
		isOptimized: func(c, _ models.WorkloadConfig) bool {
			return c.HardwareModel == reference.MostEfficientHardware().Model
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.HardwareModel == b.HardwareModel },
		apply: func(c, _ models.WorkloadConfig) models.WorkloadConfig {
			c.HardwareModel = reference.MostEfficientHardware().Model
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.HardwareModel = b.HardwareModel
			return c
		},
	},
	{
		ID:    "inference_region",
		Title: "Inference Edge Decoupling",
		Field: "inferenceRegion",
		describe: func(b models.WorkloadConfig) string {
			return fmt.Sprintf("Baseline uses %s. Relocate the inference API to a low-carbon zone.", b.InferenceRegion)
		},
		isOptimized: func(c, _ models.WorkloadConfig) bool {
			return c.InferenceRegion == reference.LowestCarbonRegion().Name
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.InferenceRegion == b.InferenceRegion },
		apply: func(c, _ models.WorkloadConfig) models.WorkloadConfig {
			c.InferenceRegion = reference.LowestCarbonRegion().Name
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.InferenceRegion = b.InferenceRegion
			return c
		},
	},
	{
		ID:    "quantization",
		Title: "INT8 Quantization",
		Field: "avgLatencySeconds",
		describe: func(b models.WorkloadConfig) string {
			return fmt.Sprintf("Compress model weights to reduce latency from %gs to %gs.",
				b.AvgLatencySeconds, b.AvgLatencySeconds*quantizationFactor)
		},
		isOptimized: func(c, b models.WorkloadConfig) bool {
			return c.AvgLatencySeconds <= b.AvgLatencySeconds*quantizationTolerance
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.AvgLatencySeconds == b.AvgLatencySeconds },
		apply: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.AvgLatencySeconds = b.AvgLatencySeconds * quantizationFactor
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.AvgLatencySeconds = b.AvgLatencySeconds
			return c
		},
	},
	{
		ID:    "pruning",
		Title: "Spectral Pruning",
		Field: "trainingHours",
		describe: func(b models.WorkloadConfig) string {
			return fmt.Sprintf("Algorithmic optimization to reduce training time from %gh to %gh.",
				b.TrainingHours, prunedHours(b))
		},
		isOptimized: func(c, b models.WorkloadConfig) bool {
			return c.TrainingHours <= b.TrainingHours*pruningTolerance
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.TrainingHours == b.TrainingHours },
		apply: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.TrainingHours = prunedHours(b)
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.TrainingHours = b.TrainingHours
			return c
		},
	},
	{
		ID:    "rightsizing",
		Title: "Cluster Right-Sizing",
		Field: "gpuCount",
		describe: func(b models.WorkloadConfig) string {
			return fmt.Sprintf("Downscale from %d GPUs to %d to minimize idle waste.",
				b.GPUCount, scaledGPUs(b.GPUCount, rightsizingFactor))
		},
		isOptimized: func(c, b models.WorkloadConfig) bool {
			return c.GPUCount <= scaledGPUs(b.GPUCount, rightsizingTolerance)
		},
		atBaseline: func(c, b models.WorkloadConfig) bool { return c.GPUCount == b.GPUCount },
		apply: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.GPUCount = scaledGPUs(b.GPUCount, rightsizingFactor)
			return c
		},
		revert: func(c, b models.WorkloadConfig) models.WorkloadConfig {
			c.GPUCount = b.GPUCount
			return c
		},
	},
}

func prunedHours(b models.WorkloadConfig) float64 {
	return math.Round(b.TrainingHours * pruningFactor)
}

// scaledGPUs rounds gpus*factor to the nearest whole GPU, never below one.
func scaledGPUs(gpus int, factor float64) int {
	n := int(math.Round(float64(gpus) * factor))
	if n < 1 {
		return 1
	}
	return n
}

// All returns the catalogue in its fixed order.
func All() []Strategy {
	return append([]Strategy(nil), catalogue...)
}

// Lookup finds a strategy by id.
func Lookup(id string) (Strategy, bool) {
	for _, s := range catalogue {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}

// IsOptimized reports whether current already satisfies the strategy.
func (s Strategy) IsOptimized(current, baseline models.WorkloadConfig) bool {
	return s.isOptimized(current, baseline)
}

// IsAtBaseline reports whether the strategy's field still holds the baseline value.
func (s Strategy) IsAtBaseline(current, baseline models.WorkloadConfig) bool {
	return s.atBaseline(current, baseline)
}

// Apply sets the strategy's optimized value. Other fields are untouched.
func (s Strategy) Apply(current, baseline models.WorkloadConfig) models.WorkloadConfig {
	return s.apply(current.Clone(), baseline)
}

// Revert restores the baseline value of the strategy's field only.
func (s Strategy) Revert(current, baseline models.WorkloadConfig) models.WorkloadConfig {
	return s.revert(current.Clone(), baseline)
}

// Describe renders the strategy's description for a baseline.
func (s Strategy) Describe(baseline models.WorkloadConfig) string {
	return s.describe(baseline)
}

// Status derives the three-way state.
func (s Strategy) Status(current, baseline models.WorkloadConfig) Status {
	switch {
	case !s.IsOptimized(current, baseline):
		return StatusAvailable
	case s.IsAtBaseline(current, baseline):
		return StatusBaselineOptimal
	default:
		return StatusApplied
	}
}

// Evaluate computes the strategy's evaluation for a (current, baseline) pair.
func (s Strategy) Evaluate(current, baseline models.WorkloadConfig) Evaluation {
	return Evaluation{
		ID:           s.ID,
		Title:        s.Title,
		Field:        s.Field,
		Description:  s.Describe(baseline),
		IsOptimized:  s.IsOptimized(current, baseline),
		IsAtBaseline: s.IsAtBaseline(current, baseline),
		Status:       s.Status(current, baseline),
	}
}

// EvaluateAll evaluates the whole catalogue in order.
func EvaluateAll(current, baseline models.WorkloadConfig) []Evaluation {
	out := make([]Evaluation, 0, len(catalogue))
	for _, s := range catalogue {
		out = append(out, s.Evaluate(current, baseline))
	}
	return out
}

// Toggle reverts an APPLIED strategy, applies an AVAILABLE one and leaves a
// BASELINE_OPTIMAL one unchanged.
func Toggle(id string, current, baseline models.WorkloadConfig) (models.WorkloadConfig, Action, error) {
	s, ok := Lookup(id)
	if !ok {
		return current, "", fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	switch s.Status(current, baseline) {
	case StatusApplied:
		return s.Revert(current, baseline), ActionRevert, nil
	case StatusAvailable:
		return s.Apply(current, baseline), ActionApply, nil
	default:
		return current.Clone(), ActionNone, nil
	}
}
