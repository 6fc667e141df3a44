// Package intel mines recent event history for attack patterns and
// tracks which patterns are active threats.
package intel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/vigil/types"
)

const (
	// a pattern needs more than this many events to register
	minGroupSize = 3

	confidencePerEvent = 0.1
	maxConfidence      = 0.95
)

// AnalyzePatterns groups events by event type and returns a pattern for
// every type with more than three events. Confidence grows with group
// size and saturates below certainty. Source IPs are carried as
// descriptive metadata and never split a group.
func AnalyzePatterns(events []types.SecurityEvent, now time.Time) []types.ThreatPattern {
	type group struct {
		count   int
		sources map[string]struct{}
		firstIP string
	}

	groups := make(map[string]*group)
	order := make([]string, 0)
	for _, event := range events {
		g, ok := groups[event.EventType]
		if !ok {
			g = &group{sources: make(map[string]struct{}), firstIP: event.SourceIP}
			groups[event.EventType] = g
			order = append(order, event.EventType)
		}
		g.count++
		g.sources[event.SourceIP] = struct{}{}
	}

	patterns := make([]types.ThreatPattern, 0)
	for _, eventType := range order {
		g := groups[eventType]
		if g.count <= minGroupSize {
			continue
		}

		confidence := float64(g.count) * confidencePerEvent
		if confidence > maxConfidence {
			confidence = maxConfidence
		}

		source := g.firstIP
		if len(g.sources) > 1 {
			source = fmt.Sprintf("%d sources", len(g.sources))
		}

		patterns = append(patterns, types.ThreatPattern{
			PatternID:   uuid.NewString(),
			PatternType: eventType,
			SourceIP:    source,
			Confidence:  confidence,
			EventCount:  g.count,
			Description: fmt.Sprintf("%d %s events from %s", g.count, eventType, source),
			DetectedAt:  now,
		})
	}
	return patterns
}
