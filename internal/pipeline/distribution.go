package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// RawOutcome is one entry of a model-supplied probability list, before any
// normalization or bucket mapping.
type RawOutcome struct {
	Grade       string
	Probability float64
}

// NormalizeOutcomes drops negative and NaN entries and rescales the rest to sum
// to 1. Percentage-scale inputs are handled by the rescaling itself. Returns nil
// when no usable probability mass remains.
func NormalizeOutcomes(outcomes []RawOutcome) []RawOutcome {
	var total float64
	kept := make([]RawOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if math.IsNaN(o.Probability) || math.IsInf(o.Probability, 0) || o.Probability < 0 {
			continue
		}
		kept = append(kept, o)
		total += o.Probability
	}
	if len(kept) == 0 || total <= 0 {
		return nil
	}
	for i := range kept {
		kept[i].Probability /= total
	}
	return kept
}

// PSABucketsFromOutcomes maps a normalized outcome list into the four PSA
// buckets by substring match on the grade label. Unrecognized labels land in
// the 7-or-lower bucket.
func PSABucketsFromOutcomes(outcomes []RawOutcome) map[domain.PSATier]float64 {
	outcomes = NormalizeOutcomes(outcomes)
	if outcomes == nil {
		return nil
	}
	buckets := emptyPSABuckets()
	for _, o := range outcomes {
		buckets[psaTierForLabel(o.Grade)] += o.Probability
	}
	return buckets
}

// BGSBucketsFromOutcomes maps a normalized outcome list into the four BGS
// buckets by substring match on the grade label.
func BGSBucketsFromOutcomes(outcomes []RawOutcome) map[domain.BGSTier]float64 {
	outcomes = NormalizeOutcomes(outcomes)
	if outcomes == nil {
		return nil
	}
	buckets := emptyBGSBuckets()
	for _, o := range outcomes {
		buckets[bgsTierForLabel(o.Grade)] += o.Probability
	}
	return buckets
}

// BGSFromPSA derives BGS buckets from PSA buckets through the fixed tier
// correspondence table.
func BGSFromPSA(psa map[domain.PSATier]float64) map[domain.BGSTier]float64 {
	if psa == nil {
		return nil
	}
	buckets := emptyBGSBuckets()
	for tier, p := range psa {
		buckets[domain.PSAToBGS[tier]] += p
	}
	return buckets
}

func psaTierForLabel(label string) domain.PSATier {
	switch {
	case strings.Contains(label, "10"):
		return domain.PSATier10
	case strings.Contains(label, "9"):
		return domain.PSATier9
	case strings.Contains(label, "8"):
		return domain.PSATier8
	default:
		return domain.PSATier7Orless
	}
}

func bgsTierForLabel(label string) domain.BGSTier {
	switch {
	case strings.Contains(label, "9.5"):
		return domain.BGSTier95
	case strings.Contains(label, "9"):
		return domain.BGSTier9
	case strings.Contains(label, "8.5"):
		return domain.BGSTier85
	default:
		return domain.BGSTier8OrLess
	}
}

var gradeNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseGradeRange pulls numeric low/high bounds out of a textual range such as
// "PSA 8-9" or "around a 7". Bounds are swapped if reversed.
func ParseGradeRange(label string) (low, high float64, ok bool) {
	matches := gradeNumberRe.FindAllString(label, 2)
	if len(matches) == 0 {
		return 0, 0, false
	}
	low, _ = strconv.ParseFloat(matches[0], 64)
	high = low
	if len(matches) > 1 {
		high, _ = strconv.ParseFloat(matches[1], 64)
	}
	if low > high {
		low, high = high, low
	}
	return low, high, true
}

// FormatGradeRange renders bounds the way the range parser expects them back.
func FormatGradeRange(low, high float64) string {
	if low == high {
		return fmt.Sprintf("PSA %g", low)
	}
	return fmt.Sprintf("PSA %g-%g", low, high)
}

// Per-bucket representative grades used to measure distance from a range.
var psaRepresentative = map[domain.PSATier]float64{
	domain.PSATier10:      10,
	domain.PSATier9:       9,
	domain.PSATier8:       8,
	domain.PSATier7Orless: 7,
}

// DistributionFromRange builds a PSA-bucket distribution concentrated around a
// textual grade range. Low confidence spreads more mass onto neighbouring
// buckets. An unparseable label falls back to the conservative 5-8 band.
func DistributionFromRange(rangeLabel, confidence string) map[domain.PSATier]float64 {
	low, high, ok := ParseGradeRange(rangeLabel)
	if !ok {
		low, high = FallbackGradeLow, FallbackGradeHigh
	}
	return DistributionForBounds(low, high, confidence)
}

// DistributionForBounds assigns each PSA bucket a weight by its representative
// grade's distance from the [low, high] band, then normalizes. Buckets inside
// the band get full weight; outside weights decay with distance, slower when
// confidence is low.
func DistributionForBounds(low, high float64, confidence string) map[domain.PSATier]float64 {
	inside, near, far := 1.0, 0.25, 0.05
	if confidence == domain.ConfidenceLow {
		near, far = 0.45, 0.20
	}

	buckets := emptyPSABuckets()
	var total float64
	for tier, rep := range psaRepresentative {
		var w float64
		switch dist := bandDistance(rep, low, high); {
		case dist == 0:
			w = inside
		case dist <= 1:
			w = near
		default:
			w = far
		}
		buckets[tier] = w
		total += w
	}
	for tier := range buckets {
		buckets[tier] /= total
	}
	return buckets
}

func bandDistance(grade, low, high float64) float64 {
	switch {
	case grade < low:
		return low - grade
	case grade > high:
		return grade - high
	default:
		return 0
	}
}

func emptyPSABuckets() map[domain.PSATier]float64 {
	b := make(map[domain.PSATier]float64, len(domain.PSATiers))
	for _, t := range domain.PSATiers {
		b[t] = 0
	}
	return b
}

func emptyBGSBuckets() map[domain.BGSTier]float64 {
	b := make(map[domain.BGSTier]float64, len(domain.BGSTiers))
	for _, t := range domain.BGSTiers {
		b[t] = 0
	}
	return b
}
