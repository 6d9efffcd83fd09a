package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// EC2API is the subset of the EC2 client used for discovery.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeInstanceTypesAPIClient
}

// maxTypesPerLookup is the DescribeInstanceTypes limit on InstanceTypes.
const maxTypesPerLookup = 100

type AWSProvider struct {
	ec2Client EC2API
	region    string
}

func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewAWSProviderWithClient(ec2.NewFromConfig(cfg), region), nil
}

func NewAWSProviderWithClient(client EC2API, region string) *AWSProvider {
	return &AWSProvider{ec2Client: client, region: region}
}

func (a *AWSProvider) Name() string { return "aws" }

func (a *AWSProvider) DiscoverGPUInstances(ctx context.Context) (models.Inventory, error) {
	inv := models.Inventory{Provider: a.Name(), Region: a.region, Instances: []models.GPUInstance{}}

	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	}

	var running []types.Instance
	pager := ec2.NewDescribeInstancesPaginator(a.ec2Client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return inv, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			running = append(running, reservation.Instances...)
		}
	}
	if len(running) == 0 {
		return inv, nil
	}

	gpus, err := a.gpuInfo(ctx, running)
	if err != nil {
		return inv, err
	}

	for _, instance := range running {
		info, ok := gpus[instance.InstanceType]
		if !ok {
			continue
		}
		inv.Instances = append(inv.Instances, models.GPUInstance{
			ID:              aws.ToString(instance.InstanceId),
			Provider:        a.Name(),
			Region:          a.region,
			InstanceType:    string(instance.InstanceType),
			AcceleratorType: info.name,
			GPUCount:        info.count,
		})
	}
	return inv, nil
}

type gpuSpec struct {
	name  string
	count int
}

// gpuInfo looks up the accelerators of each distinct instance type. Types
// without GPUs are absent from the result.
func (a *AWSProvider) gpuInfo(ctx context.Context, instances []types.Instance) (map[types.InstanceType]gpuSpec, error) {
	seen := map[types.InstanceType]bool{}
	var instanceTypes []types.InstanceType
	for _, instance := range instances {
		if !seen[instance.InstanceType] {
			seen[instance.InstanceType] = true
			instanceTypes = append(instanceTypes, instance.InstanceType)
		}
	}

	specs := make(map[types.InstanceType]gpuSpec)
	for start := 0; start < len(instanceTypes); start += maxTypesPerLookup {
		batch := instanceTypes[start:min(start+maxTypesPerLookup, len(instanceTypes))]
		pager := ec2.NewDescribeInstanceTypesPaginator(a.ec2Client, &ec2.DescribeInstanceTypesInput{
			InstanceTypes: batch,
		})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("describe instance types: %w", err)
			}
			for _, it := range page.InstanceTypes {
				if spec, ok := gpuSpecOf(it); ok {
					specs[it.InstanceType] = spec
				}
			}
		}
	}
	return specs, nil
}

func gpuSpecOf(it types.InstanceTypeInfo) (gpuSpec, bool) {
	if it.GpuInfo == nil {
		return gpuSpec{}, false
	}
	var spec gpuSpec
	for _, gpu := range it.GpuInfo.Gpus {
		spec.count += int(aws.ToInt32(gpu.Count))
		if spec.name == "" {
			spec.name = aws.ToString(gpu.Name)
		}
	}
	return spec, spec.count > 0
}
