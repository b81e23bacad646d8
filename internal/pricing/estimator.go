package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// Default grading service fees folded into the net-gain calculation.
const (
	DefaultPSAFee = 25.0
	DefaultBGSFee = 35.0
)

// ROI thresholds for the recommendation rating.
const (
	strongYesROI = 1.0
	yesROI       = 0.5
	maybeROI     = 0.1
)

// TierPrices holds per-tier price estimates for one card, plus its raw
// (ungraded) price.
type TierPrices struct {
	PSA map[domain.PSATier]float64
	BGS map[domain.BGSTier]float64
	Raw float64
}

// PriceSource looks up tier prices for a card. Replaceable by design: the
// pipeline never inlines pricing logic.
type PriceSource interface {
	Prices(ctx context.Context, card *domain.CardIdentity) (*TierPrices, error)
}

// Config holds estimator fees. Zero fees fall back to the defaults.
type Config struct {
	PSAFee float64
	BGSFee float64
}

// Estimator turns a grade probability distribution and tier prices into an
// expected-value/ROI recommendation.
type Estimator struct {
	source PriceSource
	psaFee float64
	bgsFee float64
	logger *slog.Logger
}

// NewEstimator creates a post-grading value estimator.
func NewEstimator(source PriceSource, cfg Config, logger *slog.Logger) *Estimator {
	if cfg.PSAFee <= 0 {
		cfg.PSAFee = DefaultPSAFee
	}
	if cfg.BGSFee <= 0 {
		cfg.BGSFee = DefaultBGSFee
	}
	return &Estimator{
		source: source,
		psaFee: cfg.PSAFee,
		bgsFee: cfg.BGSFee,
		logger: logger,
	}
}

// Compute produces the probability-weighted financial recommendation for
// grading the card with either company.
func (e *Estimator) Compute(ctx context.Context, card *domain.CardIdentity, estimate *domain.GradeEstimate) (*domain.WorthGradingResult, error) {
	if estimate == nil || estimate.Probabilities == nil {
		return nil, fmt.Errorf("estimate with grade probabilities is required")
	}

	prices, err := e.source.Prices(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("failed to look up card prices: %w", err)
	}

	psaPath := gradingPath(toStringKeys(estimate.Probabilities.PSA), toStringKeys(prices.PSA), prices.Raw, e.psaFee)
	bgsPath := gradingPath(toStringKeys(estimate.Probabilities.BGS), toStringKeys(prices.BGS), prices.Raw, e.bgsFee)

	bestROI := psaPath.ROI
	if bgsPath.ROI > bestROI {
		bestROI = bgsPath.ROI
	}

	confidence := estimate.Probabilities.Confidence
	result := &domain.WorthGradingResult{
		PSA:            psaPath,
		BGS:            bgsPath,
		RawPrice:       prices.Raw,
		Recommendation: recommendation(bestROI, confidence),
		Confidence:     confidence,
	}

	e.logger.Debug("Post-grading value computed",
		slog.Float64("psa_ev", psaPath.ExpectedValue),
		slog.Float64("bgs_ev", bgsPath.ExpectedValue),
		slog.Float64("best_roi", bestROI),
		slog.String("recommendation", result.Recommendation),
	)

	return result, nil
}

// gradingPath computes the expected value of one grading path: the
// probability-weighted average of tier prices, minus the raw price and the
// grading fee, expressed as net gain and return on investment.
func gradingPath(probs, prices map[string]float64, rawPrice, fee float64) domain.GradingPath {
	var ev float64
	for tier, p := range probs {
		ev += p * prices[tier]
	}

	netGain := ev - rawPrice - fee
	cost := rawPrice + fee

	var roi float64
	if cost > 0 {
		roi = netGain / cost
	}

	return domain.GradingPath{
		TierPrices:    prices,
		ExpectedValue: ev,
		NetGain:       netGain,
		ROI:           roi,
	}
}

func recommendation(roi float64, confidence string) string {
	switch {
	case roi >= strongYesROI && confidence != domain.ConfidenceLow:
		return domain.RecommendationStrongYes
	case roi >= yesROI:
		return domain.RecommendationYes
	case roi >= maybeROI:
		return domain.RecommendationMaybe
	default:
		return domain.RecommendationNo
	}
}

func toStringKeys[T ~string](m map[T]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// Interface conformance
var _ pipeline.ValueEstimator = (*Estimator)(nil)
