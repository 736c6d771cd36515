package tcn

import (
	"math"
	"math/rand/v2"
)

const (
	bnEpsilon  = 1e-5
	bnMomentum = 0.1
)

// Conv1d is a causal dilated 1-D convolution. Inputs are left padded with
// (Kernel-1)*Dilation zeros so output step t only reads inputs at steps <= t.
type Conv1d struct {
	In       int       `json:"in"`
	Out      int       `json:"out"`
	Kernel   int       `json:"kernel"`
	Dilation int       `json:"dilation"`
	Weight   []float64 `json:"weight"` // [out][in][kernel]
	Bias     []float64 `json:"bias"`
}

func newConv1d(in, out, kernel, dilation int) *Conv1d {
	return &Conv1d{
		In:       in,
		Out:      out,
		Kernel:   kernel,
		Dilation: dilation,
		Weight:   make([]float64, out*in*kernel),
		Bias:     make([]float64, out),
	}
}

func (c *Conv1d) init(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(c.In*c.Kernel))
	uniform(c.Weight, bound, rng)
	uniform(c.Bias, bound, rng)
}

func (c *Conv1d) pad() int { return (c.Kernel - 1) * c.Dilation }

func (c *Conv1d) forward(x [][]float64) [][]float64 {
	length := len(x[0])
	pad := c.pad()
	y := newSeq(c.Out, length)
	for o := 0; o < c.Out; o++ {
		row := y[o]
		for t := range row {
			row[t] = c.Bias[o]
		}
		for i := 0; i < c.In; i++ {
			xi := x[i]
			w := c.Weight[(o*c.In+i)*c.Kernel:]
			for j := 0; j < c.Kernel; j++ {
				wj := w[j]
				shift := j*c.Dilation - pad
				for t := max(0, -shift); t < length; t++ {
					row[t] += wj * xi[t+shift]
				}
			}
		}
	}
	return y
}

// backward accumulates parameter gradients into g and returns dL/dx.
func (c *Conv1d) backward(x, dy [][]float64, g *Conv1d) [][]float64 {
	length := len(x[0])
	pad := c.pad()
	dx := newSeq(c.In, length)
	for o := 0; o < c.Out; o++ {
		dyo := dy[o]
		for _, v := range dyo {
			g.Bias[o] += v
		}
		for i := 0; i < c.In; i++ {
			xi, dxi := x[i], dx[i]
			base := (o*c.In + i) * c.Kernel
			for j := 0; j < c.Kernel; j++ {
				w := c.Weight[base+j]
				shift := j*c.Dilation - pad
				var gw float64
				for t := max(0, -shift); t < length; t++ {
					gw += dyo[t] * xi[t+shift]
					dxi[t+shift] += dyo[t] * w
				}
				g.Weight[base+j] += gw
			}
		}
	}
	return dx
}

// BatchNorm normalises each channel over batch and time. Training uses batch
// statistics and updates the running estimates; inference uses the running
// estimates only.
type BatchNorm struct {
	Channels    int       `json:"channels"`
	Gamma       []float64 `json:"gamma"`
	Beta        []float64 `json:"beta"`
	RunningMean []float64 `json:"running_mean"`
	RunningVar  []float64 `json:"running_var"`
}

func newBatchNorm(channels int) *BatchNorm {
	return &BatchNorm{
		Channels:    channels,
		Gamma:       make([]float64, channels),
		Beta:        make([]float64, channels),
		RunningMean: make([]float64, channels),
		RunningVar:  make([]float64, channels),
	}
}

func (b *BatchNorm) init() {
	for c := 0; c < b.Channels; c++ {
		b.Gamma[c] = 1
		b.Beta[c] = 0
		b.RunningMean[c] = 0
		b.RunningVar[c] = 1
	}
}

func (b *BatchNorm) forward(x [][]float64) [][]float64 {
	y := newSeq(len(x), len(x[0]))
	for c := range x {
		scale := b.Gamma[c] / math.Sqrt(b.RunningVar[c]+bnEpsilon)
		shift := b.Beta[c] - b.RunningMean[c]*scale
		for t, v := range x[c] {
			y[c][t] = v*scale + shift
		}
	}
	return y
}

type bnCache struct {
	xhat   [][][]float64
	invStd []float64
}

func (b *BatchNorm) forwardTrain(xs [][][]float64) ([][][]float64, bnCache) {
	batch, length := len(xs), len(xs[0][0])
	count := float64(batch * length)
	cache := bnCache{xhat: newBatch(batch, b.Channels, length), invStd: make([]float64, b.Channels)}
	ys := newBatch(batch, b.Channels, length)

	for c := 0; c < b.Channels; c++ {
		var mean float64
		for n := range xs {
			for _, v := range xs[n][c] {
				mean += v
			}
		}
		mean /= count
		var variance float64
		for n := range xs {
			for _, v := range xs[n][c] {
				d := v - mean
				variance += d * d
			}
		}
		variance /= count

		inv := 1 / math.Sqrt(variance+bnEpsilon)
		cache.invStd[c] = inv
		for n := range xs {
			for t, v := range xs[n][c] {
				h := (v - mean) * inv
				cache.xhat[n][c][t] = h
				ys[n][c][t] = b.Gamma[c]*h + b.Beta[c]
			}
		}

		unbiased := variance
		if count > 1 {
			unbiased = variance * count / (count - 1)
		}
		b.RunningMean[c] = (1-bnMomentum)*b.RunningMean[c] + bnMomentum*mean
		b.RunningVar[c] = (1-bnMomentum)*b.RunningVar[c] + bnMomentum*unbiased
	}
	return ys, cache
}

func (b *BatchNorm) backward(cache bnCache, dys [][][]float64, g *BatchNorm) [][][]float64 {
	batch, length := len(dys), len(dys[0][0])
	count := float64(batch * length)
	dxs := newBatch(batch, b.Channels, length)

	for c := 0; c < b.Channels; c++ {
		var sumDy, sumDyXhat float64
		for n := range dys {
			for t, dy := range dys[n][c] {
				sumDy += dy
				sumDyXhat += dy * cache.xhat[n][c][t]
			}
		}
		g.Gamma[c] += sumDyXhat
		g.Beta[c] += sumDy

		k := b.Gamma[c] * cache.invStd[c] / count
		for n := range dys {
			for t, dy := range dys[n][c] {
				dxs[n][c][t] = k * (count*dy - sumDy - cache.xhat[n][c][t]*sumDyXhat)
			}
		}
	}
	return dxs
}

// Linear is a fully connected layer
type Linear struct {
	In     int       `json:"in"`
	Out    int       `json:"out"`
	Weight []float64 `json:"weight"` // [out][in]
	Bias   []float64 `json:"bias"`
}

func newLinear(in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: make([]float64, out*in),
		Bias:   make([]float64, out),
	}
}

func (l *Linear) init(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(l.In))
	uniform(l.Weight, bound, rng)
	uniform(l.Bias, bound, rng)
}

func (l *Linear) forward(x []float64) []float64 {
	y := make([]float64, l.Out)
	for o := range y {
		sum := l.Bias[o]
		w := l.Weight[o*l.In : (o+1)*l.In]
		for i, v := range x {
			sum += w[i] * v
		}
		y[o] = sum
	}
	return y
}

func (l *Linear) backward(x, dy []float64, g *Linear) []float64 {
	dx := make([]float64, l.In)
	for o, d := range dy {
		g.Bias[o] += d
		base := o * l.In
		for i, v := range x {
			g.Weight[base+i] += d * v
			dx[i] += d * l.Weight[base+i]
		}
	}
	return dx
}

func uniform(dst []float64, bound float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * bound
	}
}

func newSeq(channels, length int) [][]float64 {
	s := make([][]float64, channels)
	for c := range s {
		s[c] = make([]float64, length)
	}
	return s
}

func newBatch(batch, channels, length int) [][][]float64 {
	b := make([][][]float64, batch)
	for n := range b {
		b[n] = newSeq(channels, length)
	}
	return b
}
