package core

import (
	"math"
	"math/rand"
)

// miningReward draws a reward from the tiered distribution, rounded to one
// decimal. Most rewards are small; the bands and their weights are fixed:
// 55% in [0.1,0.5), 25% in [0.6,0.7), 10% in [0.8,0.9), 10% in [1.0,1.4).
func miningReward(rng *rand.Rand) float64 {
	roll := rng.Float64()

	var reward float64
	switch {
	case roll < 0.55:
		reward = 0.1 + rng.Float64()*0.4
	case roll < 0.80:
		reward = 0.6 + rng.Float64()*0.1
	case roll < 0.90:
		reward = 0.8 + rng.Float64()*0.1
	default:
		reward = 1.0 + rng.Float64()*0.4
	}

	return math.Round(reward*10) / 10
}
