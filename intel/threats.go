package intel

import (
	"sort"
	"sync"
	"time"

	"github.com/yairfalse/vigil/types"
)

// ThreatRegistry tracks patterns promoted to active threats. A pattern is
// promoted when its confidence crosses the threshold and demoted when it
// has not been re-observed within the TTL. Safe for concurrent use.
type ThreatRegistry struct {
	mu      sync.RWMutex
	threats map[string]*types.ActiveThreat

	promoteConfidence float64
	ttl               time.Duration
}

// NewThreatRegistry creates a registry with the given promotion threshold
// and demotion TTL
func NewThreatRegistry(promoteConfidence float64, ttl time.Duration) *ThreatRegistry {
	return &ThreatRegistry{
		threats:           make(map[string]*types.ActiveThreat),
		promoteConfidence: promoteConfidence,
		ttl:               ttl,
	}
}

// Observe feeds one analysis cycle's patterns into the registry and
// returns the patterns newly promoted this cycle. Re-observed threats are
// refreshed instead of duplicated, so repeated promotion is idempotent.
func (r *ThreatRegistry) Observe(patterns []types.ThreatPattern, now time.Time) []types.ThreatPattern {
	r.mu.Lock()
	defer r.mu.Unlock()

	promoted := make([]types.ThreatPattern, 0)
	for _, pattern := range patterns {
		if pattern.Confidence <= r.promoteConfidence {
			continue
		}

		key := threatKey(pattern)
		if existing, ok := r.threats[key]; ok {
			existing.ThreatPattern = pattern
			existing.LastSeenAt = now
			existing.RefreshHits++
			continue
		}

		r.threats[key] = &types.ActiveThreat{
			ThreatPattern: pattern,
			PromotedAt:    now,
			LastSeenAt:    now,
		}
		promoted = append(promoted, pattern)
	}
	return promoted
}

// Expire demotes threats not re-observed within the TTL and returns them
func (r *ThreatRegistry) Expire(now time.Time) []types.ActiveThreat {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]types.ActiveThreat, 0)
	for key, threat := range r.threats {
		if now.Sub(threat.LastSeenAt) > r.ttl {
			expired = append(expired, *threat)
			delete(r.threats, key)
		}
	}
	return expired
}

// Active returns a snapshot of current threats, most confident first
func (r *ThreatRegistry) Active() []types.ActiveThreat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ActiveThreat, 0, len(r.threats))
	for _, threat := range r.threats {
		out = append(out, *threat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return threatKeyOf(out[i]) < threatKeyOf(out[j])
	})
	return out
}

// Len returns the number of active threats
func (r *ThreatRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threats)
}

func threatKey(p types.ThreatPattern) string {
	return p.PatternType
}

func threatKeyOf(t types.ActiveThreat) string {
	return threatKey(t.ThreatPattern)
}
