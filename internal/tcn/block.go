package tcn

import "math/rand/v2"

// Block is one residual temporal block:
//
//	x -> conv1 -> bn1 -> relu -> dropout -> conv2 -> bn2 -> relu -> dropout -+-> relu
//	|                                                                         |
//	+------------------------- identity or 1x1 conv --------------------------+
type Block struct {
	Dilation   int        `json:"dilation"`
	Conv1      *Conv1d    `json:"conv1"`
	Norm1      *BatchNorm `json:"norm1"`
	Conv2      *Conv1d    `json:"conv2"`
	Norm2      *BatchNorm `json:"norm2"`
	Downsample *Conv1d    `json:"downsample,omitempty"`
}

func newBlock(in, out, kernel, dilation int) *Block {
	b := &Block{
		Dilation: dilation,
		Conv1:    newConv1d(in, out, kernel, dilation),
		Norm1:    newBatchNorm(out),
		Conv2:    newConv1d(out, out, kernel, dilation),
		Norm2:    newBatchNorm(out),
	}
	if in != out {
		b.Downsample = newConv1d(in, out, 1, 1)
	}
	return b
}

func (b *Block) init(rng *rand.Rand) {
	b.Conv1.init(rng)
	b.Norm1.init()
	b.Conv2.init(rng)
	b.Norm2.init()
	if b.Downsample != nil {
		b.Downsample.init(rng)
	}
}

func (b *Block) forward(x [][]float64) [][]float64 {
	h := relu(b.Norm1.forward(b.Conv1.forward(x)))
	h = relu(b.Norm2.forward(b.Conv2.forward(h)))

	res := x
	if b.Downsample != nil {
		res = b.Downsample.forward(x)
	}
	for c := range h {
		for t := range h[c] {
			h[c][t] = max(0, h[c][t]+res[c][t])
		}
	}
	return h
}

type blockCache struct {
	x            [][][]float64
	norm1, norm2 bnCache
	act1, act2   [][][]float64
	mask1, mask2 [][][]float64 // nil when dropout is off
	drop1        [][][]float64
	out          [][][]float64
}

func (b *Block) forwardTrain(xs [][][]float64, dropout float64, rng *rand.Rand) ([][][]float64, *blockCache) {
	cache := &blockCache{x: xs}

	c1 := make([][][]float64, len(xs))
	for n, x := range xs {
		c1[n] = b.Conv1.forward(x)
	}
	a1, n1 := b.Norm1.forwardTrain(c1)
	cache.norm1 = n1
	cache.act1 = reluBatch(a1)
	cache.drop1, cache.mask1 = applyDropout(cache.act1, dropout, rng)

	c2 := make([][][]float64, len(xs))
	for n, h := range cache.drop1 {
		c2[n] = b.Conv2.forward(h)
	}
	a2, n2 := b.Norm2.forwardTrain(c2)
	cache.norm2 = n2
	cache.act2 = reluBatch(a2)
	drop2, mask2 := applyDropout(cache.act2, dropout, rng)
	cache.mask2 = mask2

	out := make([][][]float64, len(xs))
	for n, x := range xs {
		res := x
		if b.Downsample != nil {
			res = b.Downsample.forward(x)
		}
		o := newSeq(len(drop2[n]), len(drop2[n][0]))
		for c := range o {
			for t := range o[c] {
				o[c][t] = max(0, drop2[n][c][t]+res[c][t])
			}
		}
		out[n] = o
	}
	cache.out = out
	return out, cache
}

func (b *Block) backward(cache *blockCache, dOut [][][]float64, g *Block) [][][]float64 {
	batch := len(dOut)

	dSum := make([][][]float64, batch)
	for n := range dOut {
		dSum[n] = newSeq(len(dOut[n]), len(dOut[n][0]))
		for c := range dOut[n] {
			for t, d := range dOut[n][c] {
				if cache.out[n][c][t] > 0 {
					dSum[n][c][t] = d
				}
			}
		}
	}

	dAct2 := dropoutReluGrad(dSum, cache.mask2, cache.act2)
	dConv2 := b.Norm2.backward(cache.norm2, dAct2, g.Norm2)

	dDrop1 := make([][][]float64, batch)
	for n := range dConv2 {
		dDrop1[n] = b.Conv2.backward(cache.drop1[n], dConv2[n], g.Conv2)
	}

	dAct1 := dropoutReluGrad(dDrop1, cache.mask1, cache.act1)
	dConv1 := b.Norm1.backward(cache.norm1, dAct1, g.Norm1)

	dx := make([][][]float64, batch)
	for n := range dConv1 {
		dx[n] = b.Conv1.backward(cache.x[n], dConv1[n], g.Conv1)
		dRes := dSum[n]
		if b.Downsample != nil {
			dRes = b.Downsample.backward(cache.x[n], dSum[n], g.Downsample)
		}
		for c := range dx[n] {
			for t := range dx[n][c] {
				dx[n][c][t] += dRes[c][t]
			}
		}
	}
	return dx
}

func relu(x [][]float64) [][]float64 {
	for c := range x {
		for t, v := range x[c] {
			if v < 0 {
				x[c][t] = 0
			}
		}
	}
	return x
}

func reluBatch(xs [][][]float64) [][][]float64 {
	for n := range xs {
		relu(xs[n])
	}
	return xs
}

// applyDropout zeroes activations with probability p and scales survivors by
// 1/(1-p). The returned mask holds the per-element multiplier.
func applyDropout(xs [][][]float64, p float64, rng *rand.Rand) ([][][]float64, [][][]float64) {
	if p <= 0 || rng == nil {
		return xs, nil
	}
	scale := 1 / (1 - p)
	out := newBatch(len(xs), len(xs[0]), len(xs[0][0]))
	mask := newBatch(len(xs), len(xs[0]), len(xs[0][0]))
	for n := range xs {
		for c := range xs[n] {
			for t, v := range xs[n][c] {
				if rng.Float64() >= p {
					mask[n][c][t] = scale
					out[n][c][t] = v * scale
				}
			}
		}
	}
	return out, mask
}

// dropoutReluGrad routes the gradient back through dropout and relu
func dropoutReluGrad(dy, mask, act [][][]float64) [][][]float64 {
	dx := newBatch(len(dy), len(dy[0]), len(dy[0][0]))
	for n := range dy {
		for c := range dy[n] {
			for t, d := range dy[n][c] {
				if act[n][c][t] <= 0 {
					continue
				}
				if mask != nil {
					d *= mask[n][c][t]
				}
				dx[n][c][t] = d
			}
		}
	}
	return dx
}
