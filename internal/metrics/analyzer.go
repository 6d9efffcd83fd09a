package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

type AnalyzerConfig struct {
	MinDataPoints int // records needed before dispersion is reported
}

// Analyzer summarizes the history library.
type Analyzer struct {
	config AnalyzerConfig
}

// PortfolioSummary aggregates saved assessments.
type PortfolioSummary struct {
	ProjectCount        int                  `json:"projectCount"`
	TotalCo2SavedKg     float64              `json:"totalCo2SavedKg"`
	TotalSavingsEuro    float64              `json:"totalSavingsEuro"`
	MeanOffsetPercent   float64              `json:"meanOffsetPercent"`
	MedianOffsetPercent float64              `json:"medianOffsetPercent"`
	StdDevOffsetPercent float64              `json:"stdDevOffsetPercent"`
	GradeDistribution   map[models.Grade]int `json:"gradeDistribution"`
	BestRecordID        string               `json:"bestRecordId,omitempty"`
}

func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	if config.MinDataPoints < 2 {
		config.MinDataPoints = 2
	}
	return &Analyzer{config: config}
}

// Summarize builds the portfolio summary. An empty history yields zeros.
func (a *Analyzer) Summarize(records []models.HistoryRecord) PortfolioSummary {
	summary := PortfolioSummary{
		ProjectCount:      len(records),
		GradeDistribution: map[models.Grade]int{},
	}
	if len(records) == 0 {
		return summary
	}

	offsets := make([]float64, 0, len(records))
	best := math.Inf(-1)
	for _, rec := range records {
		summary.TotalCo2SavedKg += rec.BaselineMetrics.TotalCo2Kg - rec.CurrentMetrics.TotalCo2Kg
		summary.TotalSavingsEuro += rec.SavingsEuro
		summary.GradeDistribution[rec.CurrentMetrics.Grade]++
		offsets = append(offsets, rec.CarbonOffsetPercent)
		if rec.CarbonOffsetPercent > best {
			best = rec.CarbonOffsetPercent
			summary.BestRecordID = rec.ID
		}
	}

	summary.MeanOffsetPercent = stat.Mean(offsets, nil)

	sorted := append([]float64(nil), offsets...)
	sort.Float64s(sorted)
	summary.MedianOffsetPercent = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	if len(offsets) >= a.config.MinDataPoints {
		summary.StdDevOffsetPercent = stat.StdDev(offsets, nil)
	}
	return summary
}
