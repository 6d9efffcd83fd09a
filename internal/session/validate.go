package session

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/reference"
)

// Substitution records one field the validation policy replaced.
type Substitution struct {
	Field    string `json:"field"`
	Rejected any    `json:"rejected"`
	Used     any    `json:"used"`
}

// Upper bounds of the numeric fields. Any config inside them estimates to
// finite metrics.
const (
	MaxGPUCount          = 100000
	MaxTrainingHours     = 1e6
	MaxMonthlyRequests   = 1e12
	MaxAvgLatencySeconds = 3600
	MaxLifetimeYears     = 100
)

// DefaultConfig is the starting point of an assessment that has no document.
func DefaultConfig() models.WorkloadConfig {
	return models.WorkloadConfig{
		HardwareModel:        reference.DefaultHardware.Model,
		GPUCount:             8,
		TrainingHours:        240,
		TrainingRegion:       reference.DefaultTrainingRegion.Name,
		InferenceRegion:      reference.DefaultInferenceRegion.Name,
		MonthlyRequests:      100000,
		AvgLatencySeconds:    2.5,
		ProjectLifetimeYears: 2,
		AuditNotes:           []string{},
		Recommendations:      []string{},
	}
}

// Validate sanitises a candidate configuration so it can always be estimated.
// Unknown references are replaced by the reference fallbacks, out-of-range
// numbers are clamped to zero or to their upper bound, and missing advisory
// lists become empty. It never fails.
func Validate(cfg models.WorkloadConfig) (models.WorkloadConfig, []Substitution) {
	out := cfg.Clone()
	var subs []Substitution

	if _, ok := reference.LookupHardware(out.HardwareModel); !ok {
		subs = append(subs, Substitution{"hardwareModel", out.HardwareModel, reference.DefaultHardware.Model})
		out.HardwareModel = reference.DefaultHardware.Model
	}
	if _, ok := reference.LookupRegion(out.TrainingRegion); !ok {
		subs = append(subs, Substitution{"trainingRegion", out.TrainingRegion, reference.DefaultTrainingRegion.Name})
		out.TrainingRegion = reference.DefaultTrainingRegion.Name
	}
	if _, ok := reference.LookupRegion(out.InferenceRegion); !ok {
		subs = append(subs, Substitution{"inferenceRegion", out.InferenceRegion, reference.DefaultInferenceRegion.Name})
		out.InferenceRegion = reference.DefaultInferenceRegion.Name
	}

	switch {
	case out.GPUCount < 1:
		subs = append(subs, Substitution{"gpuCount", out.GPUCount, 1})
		out.GPUCount = 1
	case out.GPUCount > MaxGPUCount:
		subs = append(subs, Substitution{"gpuCount", out.GPUCount, MaxGPUCount})
		out.GPUCount = MaxGPUCount
	}
	clamp := func(field string, v *float64, limit float64) {
		switch {
		case math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0:
			subs = append(subs, Substitution{field, rejected(*v), 0.0})
			*v = 0
		case *v > limit:
			subs = append(subs, Substitution{field, *v, limit})
			*v = limit
		}
	}
	clamp("trainingHours", &out.TrainingHours, MaxTrainingHours)
	clamp("monthlyRequests", &out.MonthlyRequests, MaxMonthlyRequests)
	clamp("avgLatencySeconds", &out.AvgLatencySeconds, MaxAvgLatencySeconds)

	switch y := out.ProjectLifetimeYears; {
	case math.IsNaN(y) || math.IsInf(y, 0) || y <= 0:
		fallback := DefaultConfig().ProjectLifetimeYears
		subs = append(subs, Substitution{"projectLifetimeYears", rejected(y), fallback})
		out.ProjectLifetimeYears = fallback
	case y > MaxLifetimeYears:
		subs = append(subs, Substitution{"projectLifetimeYears", y, float64(MaxLifetimeYears)})
		out.ProjectLifetimeYears = MaxLifetimeYears
	}

	return out, subs
}

// rejected keeps non-finite values JSON encodable.
func rejected(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

// logSubstitutions reports validation replacements at debug level.
func logSubstitutions(logger *slog.Logger, subs []Substitution) {
	for _, s := range subs {
		logger.Debug("config value replaced", "field", s.Field, "rejected", s.Rejected, "used", s.Used)
	}
}
