package core

import (
	"math"
	"math/rand"
	"testing"
)

// rewardBand returns which reward band a rounded value falls in, or -1
func rewardBand(reward float64) int {
	switch {
	case reward >= 0.1 && reward <= 0.5:
		return 0
	case reward >= 0.6 && reward <= 0.7:
		return 1
	case reward >= 0.8 && reward <= 0.9:
		return 2
	case reward >= 1.0 && reward <= 1.4:
		return 3
	}
	return -1
}

func TestMiningRewardBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10000; i++ {
		reward := miningReward(rng)

		if rewardBand(reward) == -1 {
			t.Fatalf("reward %v outside every band", reward)
		}
		if math.Round(reward*10) != reward*10 {
			t.Fatalf("reward %v not rounded to one decimal", reward)
		}
	}
}

func TestMiningRewardDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	const draws = 20000
	counts := [4]int{}
	for i := 0; i < draws; i++ {
		counts[rewardBand(miningReward(rng))]++
	}

	fractions := [4]float64{}
	for band, count := range counts {
		fractions[band] = float64(count) / draws
	}

	// Band weights are 55/25/10/10 percent; allow a wide statistical margin.
	if fractions[0] < 0.50 || fractions[0] > 0.60 {
		t.Errorf("low band fraction = %.3f, want about 0.55", fractions[0])
	}
	if fractions[1] < 0.20 || fractions[1] > 0.30 {
		t.Errorf("mid band fraction = %.3f, want about 0.25", fractions[1])
	}
	if fractions[2] < 0.07 || fractions[2] > 0.13 {
		t.Errorf("high band fraction = %.3f, want about 0.10", fractions[2])
	}
	if fractions[3] < 0.07 || fractions[3] > 0.13 {
		t.Errorf("top band fraction = %.3f, want about 0.10", fractions[3])
	}
}

func TestMiningRewardDeterministicWithSeed(t *testing.T) {
	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		if miningReward(a) != miningReward(b) {
			t.Fatal("identical seeds produced different reward sequences")
		}
	}
}
