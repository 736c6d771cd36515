package tcn

import (
	"fmt"
	"math/rand/v2"
)

// Network is the full forecaster: a stack of temporal blocks with doubling
// dilations followed by a linear head on the last time step.
type Network struct {
	Config Config   `json:"config"`
	Blocks []*Block `json:"blocks"`
	Head   *Linear  `json:"head"`
}

// skeleton allocates zeroed tensors for cfg
func skeleton(cfg Config) *Network {
	n := &Network{Config: cfg}
	in := cfg.NumFeatures
	for i, out := range cfg.Channels {
		n.Blocks = append(n.Blocks, newBlock(in, out, cfg.KernelSize, cfg.Dilations[i]))
		in = out
	}
	n.Head = newLinear(in, cfg.Horizon)
	return n
}

// New builds a randomly initialised network. Weights use U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
func New(cfg Config, rng *rand.Rand) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := skeleton(cfg)
	for _, b := range n.Blocks {
		b.init(rng)
	}
	n.Head.init(rng)
	return n, nil
}

func (n *Network) checkInput(x [][]float64) error {
	if len(x) != n.Config.NumFeatures {
		return fmt.Errorf("%w: got %d channels, want %d", ErrShape, len(x), n.Config.NumFeatures)
	}
	for i, row := range x {
		if len(row) != n.Config.SeqLen {
			return fmt.Errorf("%w: channel %d has %d steps, want %d", ErrShape, i, len(row), n.Config.SeqLen)
		}
	}
	return nil
}

// Hidden returns the last block's output (channels × steps) in inference mode
func (n *Network) Hidden(x [][]float64) ([][]float64, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}
	h := x
	for _, b := range n.Blocks {
		h = b.forward(h)
	}
	return h, nil
}

// Predict maps a features-major window to Horizon normalised target values.
// It only reads parameters and may be called concurrently.
func (n *Network) Predict(x [][]float64) ([]float64, error) {
	h, err := n.Hidden(x)
	if err != nil {
		return nil, err
	}
	return n.Head.forward(lastStep(h)), nil
}

func lastStep(h [][]float64) []float64 {
	out := make([]float64, len(h))
	last := len(h[0]) - 1
	for c := range h {
		out[c] = h[c][last]
	}
	return out
}

type netCache struct {
	blocks []*blockCache
	last   [][]float64
}

func (n *Network) forwardTrain(xs [][][]float64, rng *rand.Rand) ([][]float64, *netCache) {
	cache := &netCache{}
	h := xs
	for _, b := range n.Blocks {
		var bc *blockCache
		h, bc = b.forwardTrain(h, n.Config.Dropout, rng)
		cache.blocks = append(cache.blocks, bc)
	}
	preds := make([][]float64, len(h))
	cache.last = make([][]float64, len(h))
	for i := range h {
		cache.last[i] = lastStep(h[i])
		preds[i] = n.Head.forward(cache.last[i])
	}
	return preds, cache
}

func (n *Network) backward(cache *netCache, dPred [][]float64, g *Network) {
	channels := n.Head.In
	length := n.Config.SeqLen
	dh := newBatch(len(dPred), channels, length)
	for i := range dPred {
		dLast := n.Head.backward(cache.last[i], dPred[i], g.Head)
		for c, d := range dLast {
			dh[i][c][length-1] = d
		}
	}
	for k := len(n.Blocks) - 1; k >= 0; k-- {
		dh = n.Blocks[k].backward(cache.blocks[k], dh, g.Blocks[k])
	}
}

// parameters lists every trainable tensor in a fixed order
func (n *Network) parameters() [][]float64 {
	var ps [][]float64
	for _, b := range n.Blocks {
		ps = append(ps,
			b.Conv1.Weight, b.Conv1.Bias, b.Norm1.Gamma, b.Norm1.Beta,
			b.Conv2.Weight, b.Conv2.Bias, b.Norm2.Gamma, b.Norm2.Beta,
		)
		if b.Downsample != nil {
			ps = append(ps, b.Downsample.Weight, b.Downsample.Bias)
		}
	}
	return append(ps, n.Head.Weight, n.Head.Bias)
}

// buffers lists the batch norm running statistics
func (n *Network) buffers() [][]float64 {
	var bs [][]float64
	for _, b := range n.Blocks {
		bs = append(bs, b.Norm1.RunningMean, b.Norm1.RunningVar, b.Norm2.RunningMean, b.Norm2.RunningVar)
	}
	return bs
}

// ParamCount is the number of trainable scalars
func (n *Network) ParamCount() int {
	total := 0
	for _, p := range n.parameters() {
		total += len(p)
	}
	return total
}

// Clone deep-copies the network
func (n *Network) Clone() *Network {
	c := skeleton(n.Config)
	c.copyFrom(n)
	return c
}

func (n *Network) copyFrom(src *Network) {
	dst, from := n.parameters(), src.parameters()
	for i := range dst {
		copy(dst[i], from[i])
	}
	dst, from = n.buffers(), src.buffers()
	for i := range dst {
		copy(dst[i], from[i])
	}
}

func (n *Network) zero() {
	for _, p := range n.parameters() {
		clear(p)
	}
}
