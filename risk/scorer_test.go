package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/vigil/types"
)

type fixedAssessor struct {
	risk float64
	err  error
}

func (f *fixedAssessor) AssessRisk(context.Context, types.Resource) (float64, error) {
	return f.risk, f.err
}

func testScorer(assessor Assessor, now time.Time) *Scorer {
	s := NewScorer(assessor)
	s.now = func() time.Time { return now }
	return s
}

func TestScoreCapsAtOne(t *testing.T) {
	now := time.Now()
	scorer := testScorer(&fixedAssessor{risk: 0.5}, now)

	// every factor fires: 0.3 + 0.5 + 0.2 + 0.5 = 1.5, capped
	resource := types.Resource{
		ID:           "i-worst",
		Tags:         map[string]string{"exposure": "public"},
		LastAccessed: now.AddDate(0, 0, -90),
	}

	got := scorer.Score(context.Background(), resource)
	assert.InDelta(t, 1.0, got, 0.001)
}

func TestScorePostureFactors(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		resource types.Resource
		want     float64
	}{
		{
			name: "hardened resource scores zero",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"exposure": "internal"},
				LastAccessed:     now,
			},
			want: 0.0,
		},
		{
			name: "missing security groups",
			resource: types.Resource{
				Tags:         map[string]string{"exposure": "internal"},
				LastAccessed: now,
			},
			want: 0.3,
		},
		{
			name: "open access tag",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"access": "open"},
				LastAccessed:     now,
			},
			want: 0.5,
		},
		{
			name: "public tag value under any key and casing",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"environment": "Public"},
				LastAccessed:     now,
			},
			want: 0.5,
		},
		{
			name: "open tag value uppercased",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"network": "OPEN"},
				LastAccessed:     now,
			},
			want: 0.5,
		},
		{
			name: "tag value merely containing public does not fire",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"team": "public-relations"},
				LastAccessed:     now,
			},
			want: 0.0,
		},
		{
			name: "stale access over thirty days",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"exposure": "internal"},
				LastAccessed:     now.AddDate(0, 0, -31),
			},
			want: 0.2,
		},
		{
			name: "exactly thirty days is not stale",
			resource: types.Resource{
				SecurityGroupIDs: []string{"sg-1"},
				Tags:             map[string]string{"exposure": "internal"},
				LastAccessed:     now.AddDate(0, 0, -30),
			},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := testScorer(&fixedAssessor{risk: 0}, now)
			got := scorer.Score(context.Background(), tt.resource)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestScoreClampsModelFactor(t *testing.T) {
	now := time.Now()
	scorer := testScorer(&fixedAssessor{risk: 0.9}, now)

	resource := types.Resource{
		SecurityGroupIDs: []string{"sg-1"},
		Tags:             map[string]string{"exposure": "internal"},
		LastAccessed:     now,
	}

	got := scorer.Score(context.Background(), resource)
	assert.InDelta(t, 0.5, got, 0.001)
}

func TestScoreDegradesOnModelFailure(t *testing.T) {
	now := time.Now()
	scorer := testScorer(&fixedAssessor{err: errors.New("inference timeout")}, now)

	resource := types.Resource{
		Tags:         map[string]string{"exposure": "public"},
		LastAccessed: now,
	}

	// posture only: 0.3 no security groups + 0.5 public
	got := scorer.Score(context.Background(), resource)
	assert.InDelta(t, 0.8, got, 0.001)
}
