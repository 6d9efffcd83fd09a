package ml

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

func saved(day int, kg float64) models.HistoryRecord {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.HistoryRecord{
		CreatedDate:     start.AddDate(0, 0, day),
		BaselineMetrics: models.LifecycleMetrics{TotalCo2Kg: 1000 + kg},
		CurrentMetrics:  models.LifecycleMetrics{TotalCo2Kg: 1000},
	}
}

// sameDay shifts rec by d without leaving its calendar day.
func sameDay(rec models.HistoryRecord, d time.Duration) models.HistoryRecord {
	rec.CreatedDate = rec.CreatedDate.Add(d)
	return rec
}

func TestForecastLinear(t *testing.T) {
	p := NewPredictor(PredictorConfig{Horizon: 7 * 24 * time.Hour})
	// Newest first, as the history store returns them.
	records := []models.HistoryRecord{saved(2, 100), saved(1, 100), saved(0, 100)}

	f, err := p.Forecast(records)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(f.SlopeKgPerDay-100) > 1e-9 || math.Abs(f.InterceptKg-100) > 1e-9 {
		t.Fatalf("line = %v + %v x", f.InterceptKg, f.SlopeKgPerDay)
	}
	if math.Abs(f.ProjectedSavedKg-1000) > 1e-9 {
		t.Errorf("projection = %v, want 1000", f.ProjectedSavedKg)
	}
	if f.Trend != TrendIncreasing || math.Abs(f.Confidence-1) > 1e-9 {
		t.Errorf("trend %s confidence %v", f.Trend, f.Confidence)
	}
	if f.Points[0].CumulativeSaved != 100 || f.Points[2].CumulativeSaved != 300 {
		t.Errorf("points = %+v", f.Points)
	}
}

func TestForecastNegativeSavings(t *testing.T) {
	p := NewPredictor(PredictorConfig{})
	f, err := p.Forecast([]models.HistoryRecord{saved(0, -50), saved(3, -50)})
	if err != nil {
		t.Fatal(err)
	}
	if f.Trend != TrendDecreasing {
		t.Errorf("trend = %s", f.Trend)
	}
	if f.HorizonDays != 30 {
		t.Errorf("default horizon = %v days", f.HorizonDays)
	}
}

func TestForecastInsufficientData(t *testing.T) {
	p := NewPredictor(PredictorConfig{})
	cases := [][]models.HistoryRecord{
		nil,
		{saved(0, 10)},
		{saved(4, 10), saved(4, 20)}, // same instant
		{saved(4, 10), sameDay(saved(4, 20), 90*time.Second)},
	}
	for _, records := range cases {
		if _, err := p.Forecast(records); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("Forecast(%d records) err = %v", len(records), err)
		}
	}
}

func TestForecastCountsCalendarDays(t *testing.T) {
	p := NewPredictor(PredictorConfig{MinDataPoints: 3})
	records := []models.HistoryRecord{
		saved(0, 10),
		sameDay(saved(0, 10), time.Minute),
		sameDay(saved(0, 10), time.Hour),
		saved(1, 10),
	}
	if _, err := p.Forecast(records); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("two calendar days passed a three-day minimum: err = %v", err)
	}

	f, err := p.Forecast(append(records, saved(2, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Points) != 5 {
		t.Errorf("points = %d, want every record", len(f.Points))
	}
}
