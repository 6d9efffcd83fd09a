package cloud

import (
	"context"
	"fmt"
	"path"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

type GCPProvider struct {
	computeService *compute.Service
	projectID      string
	zone           string
}

func NewGCPProvider(ctx context.Context, projectID, zone string, opts ...option.ClientOption) (*GCPProvider, error) {
	computeService, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create compute service: %w", err)
	}

	return &GCPProvider{
		computeService: computeService,
		projectID:      projectID,
		zone:           zone,
	}, nil
}

func (g *GCPProvider) Name() string { return "gcp" }

func (g *GCPProvider) DiscoverGPUInstances(ctx context.Context) (models.Inventory, error) {
	inv := models.Inventory{Provider: g.Name(), Region: g.zone, Instances: []models.GPUInstance{}}

	call := g.computeService.Instances.List(g.projectID, g.zone).Filter(`status = "RUNNING"`)
	err := call.Pages(ctx, func(page *compute.InstanceList) error {
		for _, instance := range page.Items {
			var count int64
			var accelerator string
			for _, acc := range instance.GuestAccelerators {
				count += acc.AcceleratorCount
				if accelerator == "" {
					accelerator = path.Base(acc.AcceleratorType)
				}
			}
			if count == 0 {
				continue
			}
			inv.Instances = append(inv.Instances, models.GPUInstance{
				ID:              fmt.Sprint(instance.Id),
				Provider:        g.Name(),
				Region:          g.zone,
				InstanceType:    path.Base(instance.MachineType),
				AcceleratorType: accelerator,
				GPUCount:        int(count),
			})
		}
		return nil
	})
	if err != nil {
		return inv, fmt.Errorf("list instances: %w", err)
	}
	return inv, nil
}
