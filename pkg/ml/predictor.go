// Package ml forecasts how the carbon saved by a portfolio of assessments
// grows over time.
package ml

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// ErrInsufficientData is returned when the records span fewer than
// MinDataPoints distinct calendar days (UTC).
var ErrInsufficientData = errors.New("insufficient data points for prediction")

type TrendType string

const (
	TrendIncreasing TrendType = "increasing"
	TrendDecreasing TrendType = "decreasing"
	TrendStable     TrendType = "stable"
)

// stableSlope is the kg CO2 per day below which a trend counts as stable.
const stableSlope = 1e-6

type PredictorConfig struct {
	MinDataPoints int
	Horizon       time.Duration // how far past the last record to project
}

type Predictor struct {
	config PredictorConfig
}

// Point is the cumulative CO2 saved at one record.
type Point struct {
	Date            time.Time `json:"date"`
	Day             float64   `json:"day"` // days since the first record
	CumulativeSaved float64   `json:"cumulativeSavedKg"`
}

// Forecast is a least-squares line through the cumulative savings.
type Forecast struct {
	Points           []Point   `json:"points"`
	SlopeKgPerDay    float64   `json:"slopeKgPerDay"`
	InterceptKg      float64   `json:"interceptKg"`
	Trend            TrendType `json:"trend"`
	Confidence       float64   `json:"confidence"` // R², 0-1
	HorizonDays      float64   `json:"horizonDays"`
	ProjectedSavedKg float64   `json:"projectedSavedKg"`
}

func NewPredictor(config PredictorConfig) *Predictor {
	if config.MinDataPoints < 2 {
		config.MinDataPoints = 2
	}
	if config.Horizon <= 0 {
		config.Horizon = 30 * 24 * time.Hour
	}
	return &Predictor{config: config}
}

// Forecast fits cumulative kg CO2 saved against days since the first record.
func (p *Predictor) Forecast(records []models.HistoryRecord) (Forecast, error) {
	sorted := append([]models.HistoryRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedDate.Before(sorted[j].CreatedDate)
	})

	points := make([]Point, 0, len(sorted))
	distinct := map[string]bool{}
	var cumulative float64
	for _, rec := range sorted {
		cumulative += rec.BaselineMetrics.TotalCo2Kg - rec.CurrentMetrics.TotalCo2Kg
		day := rec.CreatedDate.Sub(sorted[0].CreatedDate).Hours() / 24
		distinct[rec.CreatedDate.UTC().Format(time.DateOnly)] = true
		points = append(points, Point{Date: rec.CreatedDate, Day: day, CumulativeSaved: cumulative})
	}
	if len(distinct) < p.config.MinDataPoints {
		return Forecast{}, ErrInsufficientData
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, pt := range points {
		xs[i] = pt.Day
		ys[i] = pt.CumulativeSaved
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	horizonDays := p.config.Horizon.Hours() / 24
	last := xs[len(xs)-1]

	return Forecast{
		Points:           points,
		SlopeKgPerDay:    beta,
		InterceptKg:      alpha,
		Trend:            trendOf(beta),
		Confidence:       math.Max(0, math.Min(1, r2)),
		HorizonDays:      horizonDays,
		ProjectedSavedKg: alpha + beta*(last+horizonDays),
	}, nil
}

func trendOf(slope float64) TrendType {
	switch {
	case slope > stableSlope:
		return TrendIncreasing
	case slope < -stableSlope:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
