package models

import "time"

// HardwareProfile describes one accelerator model.
type HardwareProfile struct {
	Model            string  `json:"model"`
	PowerWatts       float64 `json:"powerWatts"`
	EmbodiedCarbonKg float64 `json:"embodiedCarbonKg"` // kg CO2 per unit
}

// RegionProfile describes the electricity grid of one region.
type RegionProfile struct {
	Name            string  `json:"name"`
	CarbonIntensity float64 `json:"carbonIntensity"` // kg CO2 per kWh
}

// WorkloadConfig is the AI workload under assessment.
type WorkloadConfig struct {
	HardwareModel        string   `json:"hardwareModel" yaml:"hardwareModel"`
	GPUCount             int      `json:"gpuCount" yaml:"gpuCount"`
	TrainingHours        float64  `json:"trainingHours" yaml:"trainingHours"`
	TrainingRegion       string   `json:"trainingRegion" yaml:"trainingRegion"`
	InferenceRegion      string   `json:"inferenceRegion" yaml:"inferenceRegion"`
	MonthlyRequests      float64  `json:"monthlyRequests" yaml:"monthlyRequests"`
	AvgLatencySeconds    float64  `json:"avgLatencySeconds" yaml:"avgLatencySeconds"`
	ProjectLifetimeYears float64  `json:"projectLifetimeYears" yaml:"projectLifetimeYears"`
	AuditNotes           []string `json:"auditNotes" yaml:"auditNotes"`
	Recommendations      []string `json:"recommendations" yaml:"recommendations"`
}

// Clone returns a copy that shares no slices with c.
func (c WorkloadConfig) Clone() WorkloadConfig {
	out := c
	out.AuditNotes = append([]string{}, c.AuditNotes...)
	out.Recommendations = append([]string{}, c.Recommendations...)
	return out
}

// Grade is the letter rating of a lifecycle footprint, A (best) to E (worst).
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// LifecycleMetrics is derived from a WorkloadConfig and never stored on its own.
// Inference figures are annual.
type LifecycleMetrics struct {
	TrainingEnergyKWh  float64 `json:"trainingEnergyKWh"`
	TrainingCo2Kg      float64 `json:"trainingCo2Kg"`
	InferenceEnergyKWh float64 `json:"inferenceEnergyKWh"`
	InferenceCo2Kg     float64 `json:"inferenceCo2Kg"`
	EmbodiedCo2Kg      float64 `json:"embodiedCo2Kg"`
	TotalCo2Kg         float64 `json:"totalCo2Kg"`
	TotalCostEuro      float64 `json:"totalCostEuro"`
	Grade              Grade   `json:"grade"`
}

// HistoryRecord is a frozen snapshot of a saved assessment. Only Name changes
// after creation.
type HistoryRecord struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	CreatedDate         time.Time        `json:"createdDate"`
	BaselineMetrics     LifecycleMetrics `json:"baselineMetrics"`
	CurrentMetrics      LifecycleMetrics `json:"currentMetrics"`
	ConfigAtSave        WorkloadConfig   `json:"configAtSave"`
	SavingsEuro         float64          `json:"savingsEuro"`
	CarbonOffsetPercent float64          `json:"carbonOffsetPercent"`
}

// Report is the downloadable export of an assessment.
type Report struct {
	Project     WorkloadConfig   `json:"project"`
	Metrics     LifecycleMetrics `json:"metrics"`
	GeneratedAt time.Time        `json:"generatedAt"`
	RequestedBy string           `json:"requestedBy"`
}

// GPUInstance is one running accelerator host found in a cloud account.
type GPUInstance struct {
	ID              string `json:"id"`
	Provider        string `json:"provider"` // aws, gcp
	Region          string `json:"region"`
	InstanceType    string `json:"instance_type"`
	AcceleratorType string `json:"accelerator_type"`
	GPUCount        int    `json:"gpu_count"`
}

// Inventory is the set of GPU instances discovered in one provider region.
type Inventory struct {
	Provider  string        `json:"provider"`
	Region    string        `json:"region"`
	Instances []GPUInstance `json:"instances"`
}
