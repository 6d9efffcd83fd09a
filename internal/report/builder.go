// Package report turns an assessment into its persisted and exported forms.
package report

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// Builder creates history records and report documents.
type Builder struct {
	Now    func() time.Time
	Suffix func() int // numeric suffix of generated record names
}

func NewBuilder() *Builder {
	return &Builder{
		Now:    time.Now,
		Suffix: func() int { return rand.Intn(1000) },
	}
}

// Savings is the EUR saved by current against baseline. Negative when
// current is more expensive.
func Savings(baseline, current models.LifecycleMetrics) float64 {
	return baseline.TotalCostEuro - current.TotalCostEuro
}

// CarbonOffsetPercent is the relative CO2 reduction of current against
// baseline, 0 when the baseline has no emissions.
func CarbonOffsetPercent(baseline, current models.LifecycleMetrics) float64 {
	if baseline.TotalCo2Kg <= 0 {
		return 0
	}
	return (baseline.TotalCo2Kg - current.TotalCo2Kg) / baseline.TotalCo2Kg * 100
}

// HistoryRecord freezes an assessment. An empty name gets a generated one.
func (b *Builder) HistoryRecord(name string, current models.WorkloadConfig, baseline, currentMetrics models.LifecycleMetrics) models.HistoryRecord {
	now := b.Now().UTC()
	if name == "" {
		name = fmt.Sprintf("Scan_%s_%d", now.Format("2006-01-02"), b.Suffix())
	}
	return models.HistoryRecord{
		ID:                  uuid.NewString(),
		Name:                name,
		CreatedDate:         now,
		BaselineMetrics:     baseline,
		CurrentMetrics:      currentMetrics,
		ConfigAtSave:        current.Clone(),
		SavingsEuro:         Savings(baseline, currentMetrics),
		CarbonOffsetPercent: CarbonOffsetPercent(baseline, currentMetrics),
	}
}

// Report builds the export document for the current configuration.
func (b *Builder) Report(current models.WorkloadConfig, metrics models.LifecycleMetrics, requestedBy string) models.Report {
	return models.Report{
		Project:     current.Clone(),
		Metrics:     metrics,
		GeneratedAt: b.Now().UTC(),
		RequestedBy: requestedBy,
	}
}

// Filename is the suggested download name of a report.
func Filename(r models.Report) string {
	return fmt.Sprintf("ecoscan_report_%d.json", r.GeneratedAt.UnixMilli())
}
