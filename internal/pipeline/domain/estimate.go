package domain

// Analysis status constants for a grade estimate
const (
	AnalysisStatusOK            = "ok"
	AnalysisStatusLowConfidence = "low_confidence"
	AnalysisStatusUnable        = "unable"
)

// Warning codes recorded when degraded information was used
const (
	WarningParseError    = "parse_error"
	WarningLowConfidence = "low_confidence"
	WarningUnable        = "unable"
)

// Confidence levels for an estimate's probability distribution
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// GradeEstimate is the structured outcome of one pipeline job.
type GradeEstimate struct {
	GradeLow            float64             `json:"grade_low"`
	GradeHigh           float64             `json:"grade_high"`
	Centering           string              `json:"centering"`
	Corners             string              `json:"corners"`
	Surface             string              `json:"surface"`
	Edges               string              `json:"edges"`
	Notes               string              `json:"notes,omitempty"`
	AnalysisStatus      string              `json:"analysis_status"`
	AnalysisReason      string              `json:"analysis_reason,omitempty"`
	AnalysisWarningCode string              `json:"analysis_warning_code,omitempty"`
	Probabilities       *GradeProbabilities `json:"grade_probabilities"`
}

// Evidence bundles the model's condition observations for display purposes.
type Evidence struct {
	Centering  string `json:"centering"`
	Corners    string `json:"corners"`
	Surface    string `json:"surface"`
	Edges      string `json:"edges"`
	GradeNotes string `json:"grade_notes,omitempty"`
}

// ImageStats summarizes the resolved images. It is the only signal available to
// the fallback estimate builder when no model output exists.
type ImageStats struct {
	Count    int   `json:"count"`
	AvgBytes int64 `json:"avg_bytes"`
	MinBytes int64 `json:"min_bytes"`
	MaxBytes int64 `json:"max_bytes"`
}

// CardIdentity describes the card extracted from the images. Produced by the
// identity-extraction collaborator and consumed read-only by the pipeline.
type CardIdentity struct {
	Player          string             `json:"player,omitempty"`
	Year            string             `json:"year,omitempty"`
	Brand           string             `json:"brand,omitempty"`
	SetName         string             `json:"set_name,omitempty"`
	Parallel        string             `json:"parallel,omitempty"`
	CardNumber      string             `json:"card_number,omitempty"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

// Priceable reports whether the identity carries enough fields to look up pricing.
func (c *CardIdentity) Priceable() bool {
	if c == nil {
		return false
	}
	return c.Player != "" && c.Year != "" && c.SetName != ""
}
