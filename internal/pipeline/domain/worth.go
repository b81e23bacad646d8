package domain

// Recommendation ratings for the post-grading value result
const (
	RecommendationStrongYes = "strong_yes"
	RecommendationYes       = "yes"
	RecommendationMaybe     = "maybe"
	RecommendationNo        = "no"
)

// GradingPath holds the financial projection for one grading company.
type GradingPath struct {
	TierPrices    map[string]float64 `json:"tier_prices"`
	ExpectedValue float64            `json:"expected_value"`
	NetGain       float64            `json:"net_gain"`
	ROI           float64            `json:"roi"`
}

func (p GradingPath) copy() GradingPath {
	cp := p
	cp.TierPrices = make(map[string]float64, len(p.TierPrices))
	for k, v := range p.TierPrices {
		cp.TierPrices[k] = v
	}
	return cp
}

// WorthGradingResult is the probability-weighted financial recommendation
// produced by the post-grading value collaborator.
type WorthGradingResult struct {
	PSA            GradingPath `json:"psa"`
	BGS            GradingPath `json:"bgs"`
	RawPrice       float64     `json:"raw_price"`
	Recommendation string      `json:"recommendation"`
	Confidence     string      `json:"confidence"`
}
