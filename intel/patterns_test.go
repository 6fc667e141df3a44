package intel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/types"
)

func eventsFrom(eventType, sourceIP string, n int) []types.SecurityEvent {
	events := make([]types.SecurityEvent, n)
	for i := range events {
		events[i] = types.SecurityEvent{EventType: eventType, SourceIP: sourceIP}
	}
	return events
}

func TestAnalyzePatternsIgnoresSmallGroups(t *testing.T) {
	// exactly three events is not a pattern
	patterns := AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 3), time.Now())
	assert.Empty(t, patterns)
}

func TestAnalyzePatternsConfidenceScalesWithGroupSize(t *testing.T) {
	now := time.Now()

	patterns := AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 4), now)
	require.Len(t, patterns, 1)
	assert.InDelta(t, 0.4, patterns[0].Confidence, 0.001)
	assert.Equal(t, 4, patterns[0].EventCount)
	assert.Equal(t, "LOGIN_ATTEMPT", patterns[0].PatternType)
	assert.Equal(t, "203.0.113.7", patterns[0].SourceIP)

	patterns = AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 9), now)
	require.Len(t, patterns, 1)
	assert.InDelta(t, 0.9, patterns[0].Confidence, 0.001)
}

func TestAnalyzePatternsConfidenceSaturates(t *testing.T) {
	patterns := AnalyzePatterns(eventsFrom("PORT_SCAN", "203.0.113.7", 40), time.Now())
	require.Len(t, patterns, 1)
	assert.InDelta(t, 0.95, patterns[0].Confidence, 0.001)
}

func TestAnalyzePatternsGroupsByTypeOnly(t *testing.T) {
	events := make([]types.SecurityEvent, 0, 4)
	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4"} {
		events = append(events, eventsFrom("CONFIG_CHANGE", ip, 1)...)
	}

	// four events of one type form exactly one pattern no matter how
	// many sources they came from
	patterns := AnalyzePatterns(events, time.Now())
	require.Len(t, patterns, 1)
	assert.Equal(t, "CONFIG_CHANGE", patterns[0].PatternType)
	assert.InDelta(t, 0.4, patterns[0].Confidence, 0.001)
	assert.Equal(t, 4, patterns[0].EventCount)
	assert.Equal(t, "4 sources", patterns[0].SourceIP)
}

func TestAnalyzePatternsSplitsDistinctTypes(t *testing.T) {
	events := append(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 5),
		eventsFrom("PORT_SCAN", "203.0.113.7", 5)...)
	events = append(events, eventsFrom("CONFIG_CHANGE", "203.0.113.7", 2)...)

	patterns := AnalyzePatterns(events, time.Now())
	require.Len(t, patterns, 2)
}

func TestRegistryPromotesAboveThreshold(t *testing.T) {
	registry := NewThreatRegistry(0.8, 24*time.Hour)
	now := time.Now()

	// 9 events -> 0.9 confidence, promoted
	patterns := AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 9), now)
	promoted := registry.Observe(patterns, now)
	require.Len(t, promoted, 1)
	assert.Equal(t, 1, registry.Len())

	// 4 events -> 0.4, below threshold
	patterns = AnalyzePatterns(eventsFrom("PORT_SCAN", "198.51.100.9", 4), now)
	promoted = registry.Observe(patterns, now)
	assert.Empty(t, promoted)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryReobservationRefreshesInsteadOfDuplicating(t *testing.T) {
	registry := NewThreatRegistry(0.8, 24*time.Hour)
	now := time.Now()

	patterns := AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 9), now)
	registry.Observe(patterns, now)

	later := now.Add(30 * time.Minute)
	patterns = AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 12), later)
	promoted := registry.Observe(patterns, later)

	assert.Empty(t, promoted, "re-observation must not re-promote")
	require.Equal(t, 1, registry.Len())

	active := registry.Active()
	assert.Equal(t, 12, active[0].EventCount)
	assert.Equal(t, 1, active[0].RefreshHits)
	assert.Equal(t, later, active[0].LastSeenAt)
}

func TestRegistryExpiresStaleThreats(t *testing.T) {
	registry := NewThreatRegistry(0.8, time.Hour)
	now := time.Now()

	patterns := AnalyzePatterns(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 9), now)
	registry.Observe(patterns, now)

	// within TTL, nothing expires
	assert.Empty(t, registry.Expire(now.Add(59*time.Minute)))
	assert.Equal(t, 1, registry.Len())

	expired := registry.Expire(now.Add(2 * time.Hour))
	require.Len(t, expired, 1)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistryActiveSortsByConfidence(t *testing.T) {
	registry := NewThreatRegistry(0.5, 24*time.Hour)
	now := time.Now()

	events := append(eventsFrom("LOGIN_ATTEMPT", "203.0.113.7", 7),
		eventsFrom("PORT_SCAN", "198.51.100.9", 9)...)
	registry.Observe(AnalyzePatterns(events, now), now)

	active := registry.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "PORT_SCAN", active[0].PatternType)
	assert.Equal(t, "LOGIN_ATTEMPT", active[1].PatternType)
}
