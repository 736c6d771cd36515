package tcn

import "math/rand/v2"

func tinyConfig() Config {
	return Config{
		NumFeatures: 2,
		Channels:    []int{3, 3},
		KernelSize:  2,
		Dilations:   []int{1, 2},
		Dropout:     0,
		Horizon:     2,
		SeqLen:      5,
	}
}

func randomInput(rng *rand.Rand, features, length int) [][]float64 {
	x := newSeq(features, length)
	for f := range x {
		for t := range x[f] {
			x[f][t] = rng.NormFloat64()
		}
	}
	return x
}

func randomSamples(rng *rand.Rand, cfg Config, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Input: randomInput(rng, cfg.NumFeatures, cfg.SeqLen), Target: make([]float64, cfg.Horizon)}
		for h := range out[i].Target {
			out[i].Target[h] = rng.Float64()
		}
	}
	return out
}

func copySeq(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		out[i] = append([]float64(nil), x[i]...)
	}
	return out
}
