package api

import (
	"github.com/YumeNoTenshi/ecoscan/internal/ecotags"
	"github.com/YumeNoTenshi/ecoscan/internal/metrics"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
	"github.com/YumeNoTenshi/ecoscan/pkg/ml"
)

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ReferenceResponse struct {
	Hardware              []models.HardwareProfile `json:"hardware"`
	Regions               []models.RegionProfile   `json:"regions"`
	EnergyPricePerKWh     float64                  `json:"energyPricePerKWh"`
	HardwareLifespanYears float64                  `json:"hardwareLifespanYears"`
}

type EstimateResponse struct {
	Config        models.WorkloadConfig   `json:"config"`
	Metrics       models.LifecycleMetrics `json:"metrics"`
	Substitutions []session.Substitution  `json:"substitutions,omitempty"`
}

// AssessmentResponse is the full state of one assessment.
type AssessmentResponse struct {
	ID            string                 `json:"id"`
	Source        session.Source         `json:"source"`
	Baseline      models.WorkloadConfig  `json:"baseline"`
	Current       models.WorkloadConfig  `json:"current"`
	Metrics       session.Metrics        `json:"metrics"`
	Eco           ecotags.EcoProfile     `json:"eco"`
	Strategies    []strategy.Evaluation  `json:"strategies"`
	Substitutions []session.Substitution `json:"substitutions,omitempty"`
	ImportError   string                 `json:"importError,omitempty"`
}

type ToggleResponse struct {
	Action     strategy.Action       `json:"action"`
	Current    models.WorkloadConfig `json:"current"`
	Metrics    session.Metrics       `json:"metrics"`
	Strategies []strategy.Evaluation `json:"strategies"`
}

type SaveRequest struct {
	Name string `json:"name"`
}

type RenameRequest struct {
	Name string `json:"name"`
}

type PortfolioResponse struct {
	Summary     metrics.PortfolioSummary `json:"summary"`
	Trend       *ml.Forecast             `json:"trend,omitempty"`
	TrendStatus string                   `json:"trendStatus,omitempty"`
}
