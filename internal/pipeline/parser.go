package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// NoModelResponseReason is recorded when the condition model returned nothing.
const NoModelResponseReason = "no response from condition model"

// ParseInput is the raw material for one parse/validate pass.
type ParseInput struct {
	// ModelText is the condition model's output. Nil means the model call
	// failed or returned nothing.
	ModelText *string
	Stats     domain.ImageStats
}

// ParseOutput is the structured, validated result of a parse/validate pass.
// Estimate and Probabilities are always non-nil.
type ParseOutput struct {
	Estimate         *domain.GradeEstimate
	Probabilities    *domain.GradeProbabilities
	Evidence         *domain.Evidence
	PreliminaryRange string
}

// ParseModelOutput turns the condition model's free-form output into a
// validated GradeEstimate with a complete probability distribution. It never
// fails: absent or unusable input degrades to the fallback estimate builder.
func ParseModelOutput(in ParseInput) ParseOutput {
	if in.ModelText == nil {
		return fallbackOutput(FallbackInput{
			Stats:  in.Stats,
			Status: domain.AnalysisStatusUnable,
			Reason: NoModelResponseReason,
		})
	}

	repaired := ParseJSONWithRepair(*in.ModelText)
	if repaired == nil {
		return fallbackOutput(FallbackInput{
			Stats:       in.Stats,
			Status:      domain.AnalysisStatusUnable,
			Reason:      "condition model output was not parseable",
			WarningCode: domain.WarningParseError,
		})
	}

	raw := repaired.Value

	status := asString(raw["status"])
	switch status {
	case domain.AnalysisStatusOK, domain.AnalysisStatusLowConfidence, domain.AnalysisStatusUnable:
	default:
		status = domain.AnalysisStatusOK
	}

	// The model declaring itself unable outranks any partial numeric fields it
	// may also have emitted.
	if status == domain.AnalysisStatusUnable {
		return fallbackOutput(FallbackInput{
			Stats:       in.Stats,
			Status:      domain.AnalysisStatusUnable,
			Reason:      asString(raw["reason"]),
			WarningCode: domain.WarningUnable,
		})
	}

	low, lowOK := asFloat(raw["grade_low"])
	high, highOK := asFloat(raw["grade_high"])
	switch {
	case !lowOK && !highOK:
		low, high = FallbackGradeLow, FallbackGradeHigh
	case !lowOK:
		low = high
	case !highOK:
		high = low
	}
	if low > high {
		low, high = high, low
	}

	confidence := asString(raw["confidence"])
	switch confidence {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	case "":
		if status == domain.AnalysisStatusLowConfidence {
			confidence = domain.ConfidenceLow
		} else {
			confidence = domain.ConfidenceMedium
		}
	default:
		confidence = domain.ConfidenceMedium
	}

	probs := synthesizeProbabilities(raw, low, high, confidence)

	warningCode := ""
	if repaired.Repaired {
		// A usable estimate was produced, but only after heuristic correction.
		warningCode = domain.WarningParseError
	} else if status == domain.AnalysisStatusLowConfidence {
		warningCode = domain.WarningLowConfidence
	}

	estimate := &domain.GradeEstimate{
		GradeLow:            low,
		GradeHigh:           high,
		Centering:           asString(raw["centering"]),
		Corners:             asString(raw["corners"]),
		Surface:             asString(raw["surface"]),
		Edges:               asString(raw["edges"]),
		Notes:               firstNonEmpty(asString(raw["notes"]), asString(raw["grade_notes"])),
		AnalysisStatus:      status,
		AnalysisReason:      asString(raw["reason"]),
		AnalysisWarningCode: warningCode,
		Probabilities:       probs,
	}

	return ParseOutput{
		Estimate:         estimate,
		Probabilities:    probs,
		Evidence:         evidenceFromEstimate(estimate),
		PreliminaryRange: FormatGradeRange(low, high),
	}
}

// synthesizeProbabilities guarantees two complete, normalized distributions no
// matter how much structured information the model actually returned.
func synthesizeProbabilities(raw map[string]any, low, high float64, confidence string) *domain.GradeProbabilities {
	psa := PSABucketsFromOutcomes(outcomesFromRaw(raw["probabilities"]))
	if psa == nil {
		psa = DistributionForBounds(low, high, confidence)
	}

	bgs := BGSBucketsFromOutcomes(outcomesFromRaw(raw["bgs_probabilities"]))
	if bgs == nil {
		bgs = BGSFromPSA(psa)
	}

	return &domain.GradeProbabilities{PSA: psa, BGS: bgs, Confidence: confidence}
}

// outcomesFromRaw decodes a model probability array. Entries may label the tier
// under "grade" or "tier" and carry the mass under "probability" or "percent".
func outcomesFromRaw(v any) []RawOutcome {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	outcomes := make([]RawOutcome, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		grade := firstNonEmpty(asString(entry["grade"]), asString(entry["tier"]))
		p, pOK := asFloat(entry["probability"])
		if !pOK {
			p, pOK = asFloat(entry["percent"])
		}
		if grade == "" || !pOK {
			continue
		}
		outcomes = append(outcomes, RawOutcome{Grade: grade, Probability: p})
	}
	return outcomes
}

func fallbackOutput(in FallbackInput) ParseOutput {
	estimate := BuildFallbackEstimate(in)
	return ParseOutput{
		Estimate:         estimate,
		Probabilities:    estimate.Probabilities,
		Evidence:         evidenceFromEstimate(estimate),
		PreliminaryRange: FormatGradeRange(estimate.GradeLow, estimate.GradeHigh),
	}
}

func evidenceFromEstimate(e *domain.GradeEstimate) *domain.Evidence {
	return &domain.Evidence{
		Centering:  e.Centering,
		Corners:    e.Corners,
		Surface:    e.Surface,
		Edges:      e.Edges,
		GradeNotes: e.Notes,
	}
}

// asString reads a JSON value as a trimmed string, rendering numbers when the
// model stringifies the other way around.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

// asFloat reads a JSON value as a number, tolerating numeric strings.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
