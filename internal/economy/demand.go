// Demand noise: a smooth per-title drift in shopper interest, sampled from
// layered simplex noise so neighbouring ticks move together.
package economy

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// DemandField yields deterministic demand multipliers for a seed.
type DemandField struct {
	noise opensimplex.Noise
}

// NewDemandField creates a field for seed.
func NewDemandField(seed int64) *DemandField {
	return &DemandField{noise: opensimplex.NewNormalized(seed + 500)}
}

// Variation returns a multiplier in [0.9, 1.1] for title slot at tick.
func (f *DemandField) Variation(slot int, tick uint64) float64 {
	x := float64(slot) * 1.7
	y := float64(tick) * 0.05
	return 0.9 + 0.2*octaveNoise(f.noise, x, y, 3, 1.0, 0.5)
}

// octaveNoise layers frequencies of normalized noise; result stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
