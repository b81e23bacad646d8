package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob("job-1", 30*time.Minute)

	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, JobStatusQueued, job.Status)
	require.Len(t, job.Steps, len(StepOrder))
	for _, step := range StepOrder {
		require.Contains(t, job.Steps, step)
		assert.Equal(t, StepStatusQueued, job.Steps[step].Status)
	}
	assert.WithinDuration(t, job.CreatedAt.Add(30*time.Minute), job.ExpiresAt, time.Second)
}

func TestJob_Expired(t *testing.T) {
	job := NewJob("job-1", time.Minute)

	assert.False(t, job.Expired(time.Now()))
	assert.True(t, job.Expired(time.Now().Add(2*time.Minute)))
}

func TestJob_SnapshotIsDeep(t *testing.T) {
	job := NewJob("job-1", time.Minute)
	job.Partial.Identity = &CardIdentity{
		Player:          "Mike Trout",
		FieldConfidence: map[string]float64{"player": 0.95},
	}
	job.Final = &FinalResult{
		Estimate: &GradeEstimate{
			GradeLow:  8,
			GradeHigh: 9,
			Probabilities: &GradeProbabilities{
				PSA:        map[PSATier]float64{PSATier9: 1.0},
				BGS:        map[BGSTier]float64{BGSTier9: 1.0},
				Confidence: ConfidenceHigh,
			},
		},
		PostGradingValue: &WorthGradingResult{
			PSA: GradingPath{TierPrices: map[string]float64{"9": 300}},
			BGS: GradingPath{TierPrices: map[string]float64{"9": 250}},
		},
	}

	snap := job.Snapshot()

	// Mutating the snapshot's nested structures leaves the original intact.
	snap.Steps[StepOCRIdentity].Status = StepStatusError
	snap.Partial.Identity.Player = "tampered"
	snap.Partial.Identity.FieldConfidence["player"] = 0
	snap.Final.Estimate.Probabilities.PSA[PSATier9] = 0
	snap.Final.PostGradingValue.PSA.TierPrices["9"] = 0

	assert.Equal(t, StepStatusQueued, job.Steps[StepOCRIdentity].Status)
	assert.Equal(t, "Mike Trout", job.Partial.Identity.Player)
	assert.Equal(t, 0.95, job.Partial.Identity.FieldConfidence["player"])
	assert.Equal(t, 1.0, job.Final.Estimate.Probabilities.PSA[PSATier9])
	assert.Equal(t, 300.0, job.Final.PostGradingValue.PSA.TierPrices["9"])
}

func TestCardIdentity_Priceable(t *testing.T) {
	tests := []struct {
		name     string
		identity *CardIdentity
		want     bool
	}{
		{
			name:     "complete identity",
			identity: &CardIdentity{Player: "Mike Trout", Year: "2011", SetName: "Topps Update"},
			want:     true,
		},
		{
			name:     "missing player",
			identity: &CardIdentity{Year: "2011", SetName: "Topps Update"},
			want:     false,
		},
		{
			name:     "missing year",
			identity: &CardIdentity{Player: "Mike Trout", SetName: "Topps Update"},
			want:     false,
		},
		{
			name:     "missing set",
			identity: &CardIdentity{Player: "Mike Trout", Year: "2011"},
			want:     false,
		},
		{
			name:     "nil identity",
			identity: nil,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.identity.Priceable())
		})
	}
}
