// Package risk computes per-resource risk scores from security posture
// plus a capped model contribution.
package risk

import (
	"context"
	"strings"
	"time"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

const (
	factorNoSecurityGroups = 0.3
	factorPublicExposure   = 0.5
	factorStaleAccess      = 0.2

	maxModelFactor = 0.5
	staleAfterDays = 30
)

// Assessor provides the model contribution to a score
type Assessor interface {
	AssessRisk(ctx context.Context, resource types.Resource) (float64, error)
}

// Scorer computes resource risk scores. Posture factors are additive and
// the total is capped at 1.0.
type Scorer struct {
	assessor Assessor
	logger   *telemetry.Logger
	now      func() time.Time
}

// NewScorer creates a scorer using the given model assessor
func NewScorer(assessor Assessor) *Scorer {
	return &Scorer{
		assessor: assessor,
		logger:   telemetry.NewLogger("risk-scorer"),
		now:      time.Now,
	}
}

// Score computes the risk score for a resource. When the model assessment
// fails the score degrades to posture factors only rather than erroring.
func (s *Scorer) Score(ctx context.Context, resource types.Resource) float64 {
	score := s.postureScore(resource)

	model, err := s.assessor.AssessRisk(ctx, resource)
	if err != nil {
		s.logger.WithContext(ctx).Warn().
			Str("resource_id", resource.ID).
			Err(err).
			Msg("Model risk assessment failed, scoring on posture only")
	} else {
		if model < 0 {
			model = 0
		}
		if model > maxModelFactor {
			model = maxModelFactor
		}
		score += model
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (s *Scorer) postureScore(resource types.Resource) float64 {
	var score float64

	if len(resource.SecurityGroupIDs) == 0 {
		score += factorNoSecurityGroups
	}
	if taggedPublic(resource.Tags) {
		score += factorPublicExposure
	}
	if resource.DaysSinceAccess(s.now()) > staleAfterDays {
		score += factorStaleAccess
	}
	return score
}

// taggedPublic reports whether any tag value marks the resource as
// publicly exposed, regardless of the tag key or value casing
func taggedPublic(tags map[string]string) bool {
	for _, value := range tags {
		if strings.EqualFold(value, "public") || strings.EqualFold(value, "open") {
			return true
		}
	}
	return false
}
