// Package cloud discovers running GPU capacity in cloud accounts.
package cloud

import (
	"context"
	"fmt"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// CloudProvider lists the GPU instances of one account region or zone.
type CloudProvider interface {
	// Name is the provider identifier, "aws" or "gcp".
	Name() string

	// DiscoverGPUInstances returns every running instance with at least one GPU.
	DiscoverGPUInstances(ctx context.Context) (models.Inventory, error)
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Kind       string // aws, gcp
	AWSRegion  string
	GCPProject string
	GCPZone    string
}

// NewProvider builds the provider named by cfg.Kind.
func NewProvider(ctx context.Context, cfg ProviderConfig) (CloudProvider, error) {
	switch cfg.Kind {
	case "aws":
		return NewAWSProvider(ctx, cfg.AWSRegion)
	case "gcp":
		return NewGCPProvider(ctx, cfg.GCPProject, cfg.GCPZone)
	case "":
		return nil, fmt.Errorf("no cloud provider configured")
	default:
		return nil, fmt.Errorf("unsupported cloud provider %q", cfg.Kind)
	}
}
