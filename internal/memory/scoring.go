package memory

import (
	"math"
	"time"
)

type Weights struct {
	Similarity   float64
	Value        float64
	Recency      float64
	Frequency    float64
	EmotionBonus float64
}

// Scorer re-ranks candidates by similarity, stored weight, recency and use.
type Scorer struct {
	Weights       Weights
	HalfLifeHours float64
	FrequencyCap  float64
}

func DefaultScorer() Scorer {
	return Scorer{
		Weights: Weights{
			Similarity:   0.45,
			Value:        0.25,
			Recency:      0.20,
			Frequency:    0.10,
			EmotionBonus: 0.05,
		},
		HalfLifeHours: 72,
		FrequencyCap:  10,
	}
}

// Recency is 1 at age zero and 0.5 after one half-life. Negative ages count as zero.
func (s Scorer) Recency(created, now time.Time) float64 {
	ageHours := math.Max(0, now.Sub(created).Hours())
	return 1 / (1 + ageHours/s.HalfLifeHours)
}

func (s Scorer) Frequency(accessCount int) float64 {
	return math.Min(float64(accessCount)/s.FrequencyCap, 1)
}

func (s Scorer) Score(c Candidate, queryEmotions []string, now time.Time) float64 {
	score := c.Similarity*s.Weights.Similarity +
		c.Weight*s.Weights.Value +
		s.Recency(c.CreatedAt, now)*s.Weights.Recency +
		s.Frequency(c.AccessCount)*s.Weights.Frequency
	if overlapsFold(c.Emotions, queryEmotions) {
		score += s.Weights.EmotionBonus
	}
	return score
}
