package pipeline

import (
	"context"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// ImageRef is one image reference from an estimate request: exactly one of an
// HTTPS URL or inline base64 content.
type ImageRef struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// ResolvedImage is an input image normalized into memory with a known type.
type ResolvedImage struct {
	Data []byte
	MIME string
}

// ImageResolver validates and normalizes input images.
type ImageResolver interface {
	Resolve(ctx context.Context, refs []ImageRef) ([]ResolvedImage, domain.ImageStats, error)
}

// IdentityExtractor derives the card's identity from its images.
type IdentityExtractor interface {
	ExtractIdentity(ctx context.Context, images []ResolvedImage) (*domain.CardIdentity, error)
}

// ConditionModel invokes the condition-assessment model. Its output is treated
// as untyped text; the pipeline's parser owns turning it into structure.
type ConditionModel interface {
	AssessCondition(ctx context.Context, images []ResolvedImage) (string, error)
}

// ValueEstimator computes the post-grading financial recommendation. Optional:
// a nil estimator skips the step.
type ValueEstimator interface {
	Compute(ctx context.Context, card *domain.CardIdentity, estimate *domain.GradeEstimate) (*domain.WorthGradingResult, error)
}

// StepListener observes step transitions, best-effort. Optional.
type StepListener interface {
	StepChanged(ctx context.Context, jobID, step, status string)
}
