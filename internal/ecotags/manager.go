// Package ecotags classifies a workload with a table of eco tags and derives
// a weighted eco score and rule-based audit notes from them.
package ecotags

import (
	"fmt"
	"sort"

	"github.com/YumeNoTenshi/ecoscan/internal/lca"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/reference"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
)

// EcoTag is one classification rule.
type EcoTag struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Score          float64 `json:"score"`     // 0-100
	Weight         float64 `json:"weight"`    // weight in the overall eco score
	Threshold      float64 `json:"threshold"` // value the tag is assigned at
	note           func(cfg models.WorkloadConfig) string
	recommendation string
}

// EcoProfile is the tag classification of one workload.
type EcoProfile struct {
	Tags     []string     `json:"tags"`
	EcoScore float64      `json:"ecoScore"`
	Grade    models.Grade `json:"grade"`
}

// defaultScore is used when no tag matches.
const defaultScore = 50

type TagManager struct {
	tags map[string]EcoTag
}

func NewTagManager() *TagManager {
	tm := &TagManager{}
	tm.initializeTags()
	return tm
}

func (tm *TagManager) initializeTags() {
	tm.tags = map[string]EcoTag{
		"low-carbon": {
			Name:        "low-carbon",
			Description: "Lifecycle footprint rates A or B",
			Score:       100,
			Weight:      1.5,
			Threshold:   2000, // kg CO2
		},
		"carbon-intensive-training": {
			Name:        "carbon-intensive-training",
			Description: "Training runs on a carbon-intensive grid",
			Score:       20,
			Weight:      1.0,
			Threshold:   0.3, // kg CO2 per kWh
			note: func(cfg models.WorkloadConfig) string {
				r := reference.TrainingRegionOrDefault(cfg.TrainingRegion)
				return fmt.Sprintf("Training grid %s emits %.3f kg CO2/kWh", r.Name, r.CarbonIntensity)
			},
			recommendation: fmt.Sprintf("Move training to %s", reference.LowestCarbonRegion().Name),
		},
		"carbon-intensive-inference": {
			Name:        "carbon-intensive-inference",
			Description: "Inference is served from a carbon-intensive grid",
			Score:       20,
			Weight:      1.2,
			Threshold:   0.3, // kg CO2 per kWh
			note: func(cfg models.WorkloadConfig) string {
				r := reference.InferenceRegionOrDefault(cfg.InferenceRegion)
				return fmt.Sprintf("Inference grid %s emits %.3f kg CO2/kWh", r.Name, r.CarbonIntensity)
			},
			recommendation: "Relocate the inference API to a low-carbon zone",
		},
		"embodied-dominant": {
			Name:        "embodied-dominant",
			Description: "Hardware manufacturing dominates the footprint",
			Score:       40,
			Weight:      0.8,
			Threshold:   0.5, // share of total CO2
			note: func(cfg models.WorkloadConfig) string {
				return fmt.Sprintf("Embodied carbon of %d accelerators dominates the footprint", cfg.GPUCount)
			},
			recommendation: "Right-size the cluster or extend hardware lifetime",
		},
		"energy-intensive-hardware": {
			Name:        "energy-intensive-hardware",
			Description: "Accelerators draw a high power load",
			Score:       30,
			Weight:      1.0,
			Threshold:   300, // Watts per GPU
			note: func(cfg models.WorkloadConfig) string {
				h := reference.HardwareOrDefault(cfg.HardwareModel)
				return fmt.Sprintf("%s draws %.0f W per GPU", h.Model, h.PowerWatts)
			},
			recommendation: fmt.Sprintf("Evaluate %s for inference workloads", reference.MostEfficientHardware().Model),
		},
		"optimizable": {
			Name:        "optimizable",
			Description: "Several optimization strategies are still available",
			Score:       50,
			Weight:      0.8,
			Threshold:   3, // available strategies
			note: func(models.WorkloadConfig) string {
				return "Multiple optimization levers remain unused"
			},
			recommendation: "Review the optimization plan",
		},
	}
}

// Tags returns the tag table sorted by name.
func (tm *TagManager) Tags() []EcoTag {
	out := make([]EcoTag, 0, len(tm.tags))
	for _, tag := range tm.tags {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Profile classifies cfg, whose metrics are m.
func (tm *TagManager) Profile(cfg models.WorkloadConfig, m models.LifecycleMetrics) EcoProfile {
	var (
		tags        = []string{}
		totalScore  float64
		totalWeight float64
	)
	for _, tag := range tm.Tags() {
		if !tm.matches(tag, cfg, m) {
			continue
		}
		tags = append(tags, tag.Name)
		totalScore += tag.Score * tag.Weight
		totalWeight += tag.Weight
	}

	ecoScore := float64(defaultScore)
	if totalWeight > 0 {
		ecoScore = totalScore / totalWeight
	}
	return EcoProfile{Tags: tags, EcoScore: ecoScore, Grade: m.Grade}
}

func (tm *TagManager) matches(tag EcoTag, cfg models.WorkloadConfig, m models.LifecycleMetrics) bool {
	switch tag.Name {
	case "low-carbon":
		return m.TotalCo2Kg <= tag.Threshold
	case "carbon-intensive-training":
		return reference.TrainingRegionOrDefault(cfg.TrainingRegion).CarbonIntensity >= tag.Threshold
	case "carbon-intensive-inference":
		return reference.InferenceRegionOrDefault(cfg.InferenceRegion).CarbonIntensity >= tag.Threshold
	case "embodied-dominant":
		return m.TotalCo2Kg > 0 && m.EmbodiedCo2Kg/m.TotalCo2Kg >= tag.Threshold
	case "energy-intensive-hardware":
		return reference.HardwareOrDefault(cfg.HardwareModel).PowerWatts >= tag.Threshold
	case "optimizable":
		available := 0
		for _, ev := range strategy.EvaluateAll(cfg, cfg) {
			if ev.Status == strategy.StatusAvailable {
				available++
			}
		}
		return float64(available) >= tag.Threshold
	}
	return false
}

// Annotate fills audit notes and recommendations from the matched tags when
// cfg carries neither. A config with either list populated is returned as is.
func (tm *TagManager) Annotate(cfg models.WorkloadConfig) models.WorkloadConfig {
	out := cfg.Clone()
	if len(out.AuditNotes) > 0 || len(out.Recommendations) > 0 {
		return out
	}

	profile := tm.Profile(out, lca.Estimate(out))
	for _, name := range profile.Tags {
		tag := tm.tags[name]
		if tag.note != nil {
			out.AuditNotes = append(out.AuditNotes, tag.note(out))
		}
		if tag.recommendation != "" {
			out.Recommendations = append(out.Recommendations, tag.recommendation)
		}
	}
	return out
}
