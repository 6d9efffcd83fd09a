package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// acceleratorHints maps substrings of cloud instance or accelerator type
// names to reference hardware models.
var acceleratorHints = []struct {
	hint  string
	model string
}{
	{"a100", "NVIDIA A100"},
	{"p4d", "NVIDIA A100"},
	{"a2-", "NVIDIA A100"},
	{"v100", "NVIDIA V100"},
	{"p3", "NVIDIA V100"},
	{"t4", "NVIDIA T4"},
	{"g4dn", "NVIDIA T4"},
}

func hardwareFor(inst models.GPUInstance) string {
	for _, name := range []string{inst.AcceleratorType, inst.InstanceType} {
		n := strings.ToLower(name)
		for _, h := range acceleratorHints {
			if strings.Contains(n, h.hint) {
				return h.model
			}
		}
	}
	return ""
}

// RegionFor maps a cloud region or zone to a reference region name. Unknown
// regions map to "Global Avg".
func RegionFor(cloudRegion string) string {
	r := strings.ToLower(cloudRegion)
	switch {
	case strings.HasPrefix(r, "us-east-1"), strings.HasPrefix(r, "us-east4"):
		return "USA (Virginia/Coal)"
	case strings.HasPrefix(r, "eu-west-3"), strings.HasPrefix(r, "europe-west9"):
		return "France (Nuclear)"
	case strings.HasPrefix(r, "cn-"):
		return "China (Coal)"
	default:
		return "Global Avg"
	}
}

// FromInventory builds a candidate config from discovered GPU instances:
// the dominant accelerator by GPU count, the total GPU count and the
// inventory region for both training and inference. Usage fields come from
// base.
func FromInventory(inv models.Inventory, base models.WorkloadConfig) (models.WorkloadConfig, error) {
	if len(inv.Instances) == 0 {
		return models.WorkloadConfig{}, fmt.Errorf("no GPU instances found in %s %s", inv.Provider, inv.Region)
	}

	perModel := map[string]int{}
	total := 0
	for _, inst := range inv.Instances {
		total += inst.GPUCount
		perModel[hardwareFor(inst)] += inst.GPUCount
	}

	names := make([]string, 0, len(perModel))
	for m := range perModel {
		names = append(names, m)
	}
	sort.Slice(names, func(i, j int) bool {
		if perModel[names[i]] != perModel[names[j]] {
			return perModel[names[i]] > perModel[names[j]]
		}
		return names[i] < names[j]
	})

	cfg := base.Clone()
	cfg.HardwareModel = names[0]
	cfg.GPUCount = total
	cfg.TrainingRegion = RegionFor(inv.Region)
	cfg.InferenceRegion = cfg.TrainingRegion
	cfg.AuditNotes = []string{
		fmt.Sprintf("Discovered %d GPU instances (%d GPUs) in %s %s", len(inv.Instances), total, inv.Provider, inv.Region),
	}
	cfg.Recommendations = []string{}
	return cfg, nil
}
