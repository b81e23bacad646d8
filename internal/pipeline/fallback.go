package pipeline

import "github.com/cardscope/gradepipe/internal/pipeline/domain"

// Conservative grade band used whenever no usable model signal exists.
const (
	FallbackGradeLow  = 5
	FallbackGradeHigh = 8
)

// Fixed evidence text for fallback estimates.
const (
	FallbackCentering = "Centering could not be assessed from the provided images."
	FallbackCorners   = "Corner condition could not be assessed from the provided images."
	FallbackSurface   = "Surface condition could not be assessed from the provided images."
	FallbackEdges     = "Edge condition could not be assessed from the provided images."
	FallbackNotes     = "Automated condition analysis was unavailable; this is a conservative default estimate."
)

// Image-quality thresholds that nudge fallback confidence from low to medium.
const (
	fallbackMediumMinImages   = 3
	fallbackMediumMinAvgBytes = 400 * 1024
)

// FallbackInput parameterizes a fallback estimate.
type FallbackInput struct {
	Stats       domain.ImageStats
	Status      string // analysis status, defaults to "unable"
	Reason      string
	WarningCode string
}

// BuildFallbackEstimate produces a deterministic, conservative estimate whose
// only variable input is image quality: more and larger images nudge confidence
// from low toward medium, never above. This is the single estimate-construction
// path for absent or unusable upstream signal.
func BuildFallbackEstimate(in FallbackInput) *domain.GradeEstimate {
	status := in.Status
	if status == "" {
		status = domain.AnalysisStatusUnable
	}

	confidence := domain.ConfidenceLow
	if in.Stats.Count >= fallbackMediumMinImages && in.Stats.AvgBytes >= fallbackMediumMinAvgBytes {
		confidence = domain.ConfidenceMedium
	}

	psa := DistributionForBounds(FallbackGradeLow, FallbackGradeHigh, confidence)
	probs := &domain.GradeProbabilities{
		PSA:        psa,
		BGS:        BGSFromPSA(psa),
		Confidence: confidence,
	}

	return &domain.GradeEstimate{
		GradeLow:            FallbackGradeLow,
		GradeHigh:           FallbackGradeHigh,
		Centering:           FallbackCentering,
		Corners:             FallbackCorners,
		Surface:             FallbackSurface,
		Edges:               FallbackEdges,
		Notes:               FallbackNotes,
		AnalysisStatus:      status,
		AnalysisReason:      in.Reason,
		AnalysisWarningCode: in.WarningCode,
		Probabilities:       probs,
	}
}
