package types

import "time"

// Resource represents a discovered cloud resource (EC2 instance, VM, etc)
type Resource struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Provider         string            `json:"provider"`
	Region           string            `json:"region"`
	SecurityGroupIDs []string          `json:"security_group_ids"`
	Tags             map[string]string `json:"tags"`
	LastAccessed     time.Time         `json:"last_accessed"`
	RiskScore        float64           `json:"risk_score"`
}

// ResourceFilter for querying the resource cache
type ResourceFilter struct {
	Type     string  `json:"type,omitempty"`
	Region   string  `json:"region,omitempty"`
	Provider string  `json:"provider,omitempty"`
	MinRisk  float64 `json:"min_risk,omitempty"`
}

// Matches checks if resource matches filter criteria
func (r *Resource) Matches(filter ResourceFilter) bool {
	if filter.Type != "" && r.Type != filter.Type {
		return false
	}
	if filter.Region != "" && r.Region != filter.Region {
		return false
	}
	if filter.Provider != "" && r.Provider != filter.Provider {
		return false
	}
	if r.RiskScore < filter.MinRisk {
		return false
	}
	return true
}

// DaysSinceAccess returns full days since the resource was last accessed
func (r *Resource) DaysSinceAccess(now time.Time) int {
	if r.LastAccessed.IsZero() {
		return 0
	}
	return int(now.Sub(r.LastAccessed).Hours() / 24)
}
