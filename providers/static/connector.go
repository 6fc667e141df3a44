// Package static implements an in-process connector with a fixed fleet
// and a scripted event feed. It backs demo deployments and lets the
// pipeline run end to end without cloud credentials.
package static

import (
	"context"
	"sync"
	"time"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

func init() {
	providers.Register("static", func(_ context.Context, config providers.ConnectorConfig) (providers.ResourceConnector, error) {
		return NewConnector(config.Region), nil
	})
}

// Connector serves a fixed resource fleet and cycles through a scripted
// sequence of security events, one batch per fetch
type Connector struct {
	region string

	mu     sync.Mutex
	cursor int
}

// NewConnector creates a static connector
func NewConnector(region string) *Connector {
	if region == "" {
		region = "local"
	}
	return &Connector{region: region}
}

// Name returns the provider name
func (c *Connector) Name() string {
	return "static"
}

// Region returns the configured region label
func (c *Connector) Region() string {
	return c.region
}

// DiscoverResources returns the fixed fleet. The fleet deliberately spans
// the risk spectrum so scoring has something to chew on.
func (c *Connector) DiscoverResources(_ context.Context) ([]types.Resource, error) {
	now := time.Now()
	return []types.Resource{
		{
			ID:               "vm-web-01",
			Name:             "web frontend",
			Type:             "vm",
			Provider:         "static",
			Region:           c.region,
			SecurityGroupIDs: []string{"sg-web"},
			Tags:             map[string]string{"exposure": "internal", "team": "web"},
			LastAccessed:     now.Add(-2 * time.Hour),
		},
		{
			ID:               "vm-legacy-07",
			Name:             "legacy batch host",
			Type:             "vm",
			Provider:         "static",
			Region:           c.region,
			SecurityGroupIDs: nil,
			Tags:             map[string]string{"exposure": "public"},
			LastAccessed:     now.AddDate(0, 0, -45),
		},
		{
			ID:               "bucket-archive",
			Name:             "data archive",
			Type:             "storage",
			Provider:         "static",
			Region:           c.region,
			SecurityGroupIDs: []string{"sg-data"},
			Tags:             map[string]string{"access": "open"},
			LastAccessed:     now.AddDate(0, 0, -10),
		},
	}, nil
}

// script is the rotating event feed
var script = []types.RawEvent{
	{Type: "LOGIN_ATTEMPT", Severity: "MEDIUM", SourceIP: "198.51.100.23", Target: "vm-web-01", Description: "ssh login"},
	{Type: "NETWORK_ACCESS", Severity: "LOW", SourceIP: "10.0.0.8", Target: "vm-web-01", Description: "internal health probe"},
	{Type: "LOGIN_ATTEMPT", Severity: "CRITICAL", SourceIP: "203.0.113.99", Target: "vm-legacy-07", Description: "root login from unknown host"},
	{Type: "CONFIG_CHANGE", Severity: "HIGH", SourceIP: "198.51.100.23", Target: "bucket-archive", Description: "bucket policy widened"},
	{Type: "DATA_EXFILTRATION", Severity: "CRITICAL", SourceIP: "203.0.113.99", Target: "bucket-archive", Description: "bulk object download"},
	{Type: "LOGIN_ATTEMPT", Severity: "LOW", SourceIP: "10.0.0.8", Target: "vm-web-01", Description: "service account login"},
}

// FetchSecurityEvents returns the next two scripted events, stamped with
// the current time
func (c *Connector) FetchSecurityEvents(_ context.Context, _ time.Time) ([]types.RawEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	batch := make([]types.RawEvent, 0, 2)
	for i := 0; i < 2; i++ {
		event := script[c.cursor%len(script)]
		event.Timestamp = now
		batch = append(batch, event)
		c.cursor++
	}
	return batch, nil
}
