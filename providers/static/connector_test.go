package static

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverResourcesReturnsFleet(t *testing.T) {
	c := NewConnector("local")
	resources, err := c.DiscoverResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 3)

	for _, r := range resources {
		assert.Equal(t, "static", r.Provider)
		assert.Equal(t, "local", r.Region)
		assert.NotEmpty(t, r.ID)
	}
}

func TestFetchSecurityEventsRotates(t *testing.T) {
	c := NewConnector("")

	first, err := c.FetchSecurityEvents(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := c.FetchSecurityEvents(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, second, 2)

	assert.NotEqual(t, first[0].Type+first[0].SourceIP, second[0].Type+second[0].SourceIP)
	for _, event := range append(first, second...) {
		assert.False(t, event.Timestamp.IsZero())
	}
}
