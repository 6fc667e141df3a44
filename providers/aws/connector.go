// Package aws implements the AWS connector. Inventory comes from EC2
// and security events come from CloudTrail.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

func init() {
	providers.Register("aws", func(ctx context.Context, config providers.ConnectorConfig) (providers.ResourceConnector, error) {
		return NewConnector(ctx, config.Region)
	})
}

// ec2API is the slice of the EC2 client the connector needs
type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// cloudTrailAPI is the slice of the CloudTrail client the connector needs
type cloudTrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// Connector pulls EC2 inventory and CloudTrail events for one region
type Connector struct {
	region      string
	ec2Client   ec2API
	trailClient cloudTrailAPI
	logger      *telemetry.Logger
	tracer      trace.Tracer
}

// NewConnector creates a connector using the default AWS credential chain
func NewConnector(ctx context.Context, region string) (*Connector, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Connector{
		region:      region,
		ec2Client:   ec2.NewFromConfig(cfg),
		trailClient: cloudtrail.NewFromConfig(cfg),
		logger:      telemetry.NewLogger("aws-connector"),
		tracer:      otel.Tracer("aws-connector"),
	}, nil
}

// Name returns the provider name
func (c *Connector) Name() string {
	return "aws"
}

// Region returns the connector's region
func (c *Connector) Region() string {
	return c.region
}

// DiscoverResources lists EC2 instances as monitored resources
func (c *Connector) DiscoverResources(ctx context.Context) ([]types.Resource, error) {
	ctx, span := c.tracer.Start(ctx, "aws.discover_resources")
	defer span.End()

	var resources []types.Resource
	var nextToken *string

	for {
		output, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, c.convertInstance(instance))
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	c.logger.WithContext(ctx).Debug().
		Str("region", c.region).
		Int("count", len(resources)).
		Msg("Discovered EC2 instances")
	return resources, nil
}

// FetchSecurityEvents returns CloudTrail events since the cursor as raw
// security events
func (c *Connector) FetchSecurityEvents(ctx context.Context, since time.Time) ([]types.RawEvent, error) {
	ctx, span := c.tracer.Start(ctx, "aws.fetch_security_events")
	defer span.End()

	end := time.Now()
	var events []types.RawEvent
	var nextToken *string

	for {
		output, err := c.trailClient.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
			StartTime:  &since,
			EndTime:    &end,
			MaxResults: aws.Int32(50),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to lookup CloudTrail events: %w", err)
		}

		for _, event := range output.Events {
			raw, ok := c.convertTrailEvent(event)
			if ok {
				events = append(events, raw)
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	c.logger.WithContext(ctx).Debug().
		Str("region", c.region).
		Int("count", len(events)).
		Msg("Fetched CloudTrail events")
	return events, nil
}
