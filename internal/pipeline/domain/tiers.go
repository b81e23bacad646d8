package domain

// PSATier is one discrete outcome bucket on the PSA grading scale.
type PSATier string

// BGSTier is one discrete outcome bucket on the BGS grading scale.
type BGSTier string

const (
	PSATier10      PSATier = "10"
	PSATier9       PSATier = "9"
	PSATier8       PSATier = "8"
	PSATier7Orless PSATier = "7_or_lower"

	BGSTier95      BGSTier = "9.5"
	BGSTier9       BGSTier = "9"
	BGSTier85      BGSTier = "8.5"
	BGSTier8OrLess BGSTier = "8_or_lower"
)

// PSATiers lists the PSA buckets from best to worst.
var PSATiers = []PSATier{PSATier10, PSATier9, PSATier8, PSATier7Orless}

// BGSTiers lists the BGS buckets from best to worst.
var BGSTiers = []BGSTier{BGSTier95, BGSTier9, BGSTier85, BGSTier8OrLess}

// PSAToBGS is the fixed correspondence between the two tier schemes. Deriving a
// BGS distribution from a PSA one is a lookup in this table, nothing more.
var PSAToBGS = map[PSATier]BGSTier{
	PSATier10:      BGSTier95,
	PSATier9:       BGSTier9,
	PSATier8:       BGSTier85,
	PSATier7Orless: BGSTier8OrLess,
}

// GradeProbabilities holds two parallel discrete distributions over
// grading-company tiers. Both distributions are always present and each sums
// to 1 within floating-point tolerance, even in fallback mode.
type GradeProbabilities struct {
	PSA        map[PSATier]float64 `json:"psa"`
	BGS        map[BGSTier]float64 `json:"bgs"`
	Confidence string              `json:"confidence"`
}

// Copy returns a deep copy, or nil for a nil receiver.
func (g *GradeProbabilities) Copy() *GradeProbabilities {
	if g == nil {
		return nil
	}
	cp := GradeProbabilities{
		PSA:        make(map[PSATier]float64, len(g.PSA)),
		BGS:        make(map[BGSTier]float64, len(g.BGS)),
		Confidence: g.Confidence,
	}
	for k, v := range g.PSA {
		cp.PSA[k] = v
	}
	for k, v := range g.BGS {
		cp.BGS[k] = v
	}
	return &cp
}
