package scoring

import "github.com/nitesh/bizrank/pkg/models"

// Weights maps each aspect to its contribution to the overall score.
type Weights map[models.Aspect]float64

// DefaultWeights apply to categories without an explicit entry.
var DefaultWeights = Weights{
	models.AspectSpeed:       0.25,
	models.AspectValue:       0.25,
	models.AspectQuality:     0.25,
	models.AspectReliability: 0.25,
}

// categoryWeights is read-only after init.
var categoryWeights = map[string]Weights{
	"hvac": {
		models.AspectSpeed:       0.4,
		models.AspectValue:       0.15,
		models.AspectQuality:     0.35,
		models.AspectReliability: 0.3,
	},
	"plumbing": {
		models.AspectSpeed:       0.35,
		models.AspectValue:       0.2,
		models.AspectQuality:     0.3,
		models.AspectReliability: 0.25,
	},
	"electrical": {
		models.AspectSpeed:       0.2,
		models.AspectValue:       0.15,
		models.AspectQuality:     0.4,
		models.AspectReliability: 0.35,
	},
	"roofing": {
		models.AspectSpeed:       0.15,
		models.AspectValue:       0.25,
		models.AspectQuality:     0.4,
		models.AspectReliability: 0.3,
	},
	"landscaping": {
		models.AspectSpeed:       0.15,
		models.AspectValue:       0.3,
		models.AspectQuality:     0.3,
		models.AspectReliability: 0.35,
	},
	"cleaning": {
		models.AspectSpeed:       0.2,
		models.AspectValue:       0.3,
		models.AspectQuality:     0.3,
		models.AspectReliability: 0.3,
	},
	"auto-repair": {
		models.AspectSpeed:       0.25,
		models.AspectValue:       0.3,
		models.AspectQuality:     0.3,
		models.AspectReliability: 0.25,
	},
}

// WeightsFor returns the weight table for a category slug.
func WeightsFor(category string) Weights {
	if w, ok := categoryWeights[category]; ok {
		return w
	}
	return DefaultWeights
}

func (w Weights) total() float64 {
	var t float64
	for _, a := range models.Aspects {
		t += w[a]
	}
	return t
}
