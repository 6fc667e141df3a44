// Package providers defines the cloud connector interface and registry
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yairfalse/vigil/types"
)

// ResourceConnector pulls inventory and security events from one cloud
type ResourceConnector interface {
	// DiscoverResources lists the resources visible to this connector
	DiscoverResources(ctx context.Context) ([]types.Resource, error)

	// FetchSecurityEvents returns raw events observed since the cursor
	FetchSecurityEvents(ctx context.Context, since time.Time) ([]types.RawEvent, error)

	// Provider info
	Name() string
	Region() string
}

// ConnectorConfig holds connector configuration
type ConnectorConfig struct {
	Region string
}

// ConnectorFactory creates a connector instance
type ConnectorFactory func(ctx context.Context, config ConnectorConfig) (ResourceConnector, error)

var (
	mu         sync.RWMutex
	connectors = make(map[string]ConnectorFactory)
)

// Register registers a connector factory under a provider name
func Register(name string, factory ConnectorFactory) {
	mu.Lock()
	defer mu.Unlock()
	connectors[name] = factory
}

// New creates a connector instance by provider name
func New(ctx context.Context, name string, config ConnectorConfig) (ResourceConnector, error) {
	mu.RLock()
	factory, exists := connectors[name]
	mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("connector %s not found", name)
	}
	return factory(ctx, config)
}

// List returns registered provider names in stable order
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(connectors))
	for name := range connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
