package reference

import "testing"

func TestTableSizes(t *testing.T) {
	if got := len(Hardware()); got != 3 {
		t.Fatalf("hardware table has %d entries, want 3", got)
	}
	if got := len(Regions()); got != 4 {
		t.Fatalf("region table has %d entries, want 4", got)
	}
}

func TestTablesAreCopies(t *testing.T) {
	hw := Hardware()
	hw[0].PowerWatts = 1
	if h, _ := LookupHardware("NVIDIA A100"); h.PowerWatts != 400 {
		t.Fatalf("mutating Hardware() result leaked into the table: %v", h)
	}
}

func TestFallbacks(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"known hardware", HardwareOrDefault("NVIDIA T4").Model, "NVIDIA T4"},
		{"unknown hardware", HardwareOrDefault("TPU v5").Model, "NVIDIA A100"},
		{"unknown training region", TrainingRegionOrDefault("Mars").Name, "USA (Virginia/Coal)"},
		{"unknown inference region", InferenceRegionOrDefault("").Name, "Global Avg"},
		{"known region", InferenceRegionOrDefault("China (Coal)").Name, "China (Coal)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
	if DefaultTrainingRegion.Name == DefaultInferenceRegion.Name {
		t.Error("training and inference fallbacks must differ")
	}
}

func TestOptimalEntries(t *testing.T) {
	if r := LowestCarbonRegion(); r.Name != "France (Nuclear)" || r.CarbonIntensity != 0.057 {
		t.Errorf("LowestCarbonRegion() = %+v", r)
	}
	if h := MostEfficientHardware(); h.Model != "NVIDIA T4" {
		t.Errorf("MostEfficientHardware() = %+v", h)
	}
}
