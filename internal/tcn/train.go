package tcn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Sample is one supervised pair: a features-major window and its targets
type Sample struct {
	Input  [][]float64
	Target []float64
}

// TrainConfig holds optimiser and schedule hyperparameters
type TrainConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	BatchSize    int
	// AccumulationSteps mini-batches are summed before each optimiser step
	AccumulationSteps int
	Epochs            int
	// PlateauFactor multiplies the learning rate after PlateauPatience epochs
	// without a relative validation improvement of PlateauThreshold
	PlateauFactor    float64
	PlateauPatience  int
	PlateauThreshold float64
}

// DefaultTrainConfig is Adam at 1e-3 on batches of 64 accumulated to 256,
// halving the rate after 5 stagnant epochs.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate:      1e-3,
		Beta1:             0.9,
		Beta2:             0.999,
		Epsilon:           1e-8,
		BatchSize:         64,
		AccumulationSteps: 4,
		Epochs:            80,
		PlateauFactor:     0.5,
		PlateauPatience:   5,
		PlateauThreshold:  1e-4,
	}
}

// Validate rejects unusable hyperparameters
func (c TrainConfig) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return errors.New("tcn: learning rate must be positive")
	case c.BatchSize <= 0:
		return errors.New("tcn: batch size must be positive")
	case c.AccumulationSteps <= 0:
		return errors.New("tcn: accumulation steps must be positive")
	case c.Epochs <= 0:
		return errors.New("tcn: epochs must be positive")
	case c.PlateauFactor <= 0 || c.PlateauFactor >= 1:
		return errors.New("tcn: plateau factor must be in (0,1)")
	}
	return nil
}

// EpochStats reports one finished epoch
type EpochStats struct {
	Epoch        int     `json:"epoch"`
	TrainLoss    float64 `json:"train_loss"`
	ValLoss      float64 `json:"val_loss"`
	LearningRate float64 `json:"learning_rate"`
	Best         bool    `json:"best"`
}

// Trainer owns the optimiser state for one network. It is single-writer and
// must not run while the same network serves predictions.
type Trainer struct {
	net   *Network
	grads *Network
	m, v  [][]float64
	cfg   TrainConfig
	rng   *rand.Rand
	lr    float64
	step  int
	sched plateau
}

// NewTrainer prepares Adam state for net
func NewTrainer(net *Network, cfg TrainConfig, rng *rand.Rand) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grads := skeleton(net.Config)
	t := &Trainer{
		net:   net,
		grads: grads,
		cfg:   cfg,
		rng:   rng,
		lr:    cfg.LearningRate,
		sched: plateau{
			factor:    cfg.PlateauFactor,
			patience:  cfg.PlateauPatience,
			threshold: cfg.PlateauThreshold,
			best:      math.Inf(1),
		},
	}
	for _, p := range grads.parameters() {
		t.m = append(t.m, make([]float64, len(p)))
		t.v = append(t.v, make([]float64, len(p)))
	}
	return t, nil
}

// LearningRate is the current, possibly decayed, rate
func (t *Trainer) LearningRate() float64 { return t.lr }

// accumulate runs one training-mode mini-batch and adds the MSE gradient,
// divided by the accumulation steps, to the gradient buffers.
func (t *Trainer) accumulate(batch []Sample) float64 {
	xs := make([][][]float64, len(batch))
	for i, s := range batch {
		xs[i] = s.Input
	}
	preds, cache := t.net.forwardTrain(xs, t.rng)

	count := float64(len(batch) * t.net.Config.Horizon)
	scale := 2 / count / float64(t.cfg.AccumulationSteps)
	var loss float64
	dPred := make([][]float64, len(batch))
	for i, p := range preds {
		dPred[i] = make([]float64, len(p))
		for h, v := range p {
			diff := v - batch[i].Target[h]
			loss += diff * diff
			dPred[i][h] = scale * diff
		}
	}
	t.net.backward(cache, dPred, t.grads)
	return loss / count
}

func (t *Trainer) applyAdam() {
	t.step++
	c1 := 1 - math.Pow(t.cfg.Beta1, float64(t.step))
	c2 := 1 - math.Pow(t.cfg.Beta2, float64(t.step))
	params, grads := t.net.parameters(), t.grads.parameters()
	for i, p := range params {
		g, m, v := grads[i], t.m[i], t.v[i]
		for j := range p {
			m[j] = t.cfg.Beta1*m[j] + (1-t.cfg.Beta1)*g[j]
			v[j] = t.cfg.Beta2*v[j] + (1-t.cfg.Beta2)*g[j]*g[j]
			p[j] -= t.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + t.cfg.Epsilon)
		}
	}
	t.grads.zero()
}

// Fit trains for the configured epochs, evaluating on val after each one.
// The learning rate decays on validation plateaus and the weights with the
// lowest validation loss are restored before returning. With an empty val
// set the training loss drives both.
func (t *Trainer) Fit(ctx context.Context, train, val []Sample, onEpoch func(EpochStats)) ([]EpochStats, error) {
	if len(train) == 0 {
		return nil, errors.New("tcn: no training samples")
	}
	for i, s := range append(append([]Sample(nil), train...), val...) {
		if err := t.checkSample(s); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	var (
		history  []EpochStats
		best     *Network
		bestLoss = math.Inf(1)
	)
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		t.grads.zero()

		var (
			lossSum float64
			batches int
			pending int
		)
		for start := 0; start < len(order); start += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := min(start+t.cfg.BatchSize, len(order))
			batch := make([]Sample, 0, end-start)
			for _, idx := range order[start:end] {
				batch = append(batch, train[idx])
			}

			lossSum += t.accumulate(batch)
			batches++
			pending++
			if pending == t.cfg.AccumulationSteps {
				t.applyAdam()
				pending = 0
			}
		}
		if pending > 0 {
			t.applyAdam()
		}

		stats := EpochStats{Epoch: epoch, TrainLoss: lossSum / float64(batches)}
		stats.ValLoss = stats.TrainLoss
		if len(val) > 0 {
			v, err := Evaluate(t.net, val)
			if err != nil {
				return history, err
			}
			stats.ValLoss = v
		}
		if stats.ValLoss < bestLoss {
			bestLoss = stats.ValLoss
			best = t.net.Clone()
			stats.Best = true
		}
		if t.sched.step(stats.ValLoss) {
			t.lr *= t.sched.factor
		}
		stats.LearningRate = t.lr

		history = append(history, stats)
		if onEpoch != nil {
			onEpoch(stats)
		}
	}

	if best != nil {
		t.net.copyFrom(best)
	}
	return history, nil
}

func (t *Trainer) checkSample(s Sample) error {
	if err := t.net.checkInput(s.Input); err != nil {
		return err
	}
	if len(s.Target) != t.net.Config.Horizon {
		return fmt.Errorf("%w: target has %d steps, want %d", ErrShape, len(s.Target), t.net.Config.Horizon)
	}
	return nil
}

// Evaluate is the inference-mode MSE over samples
func Evaluate(net *Network, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	var count int
	for _, s := range samples {
		pred, err := net.Predict(s.Input)
		if err != nil {
			return 0, err
		}
		if len(s.Target) != len(pred) {
			return 0, fmt.Errorf("%w: target has %d steps, want %d", ErrShape, len(s.Target), len(pred))
		}
		for h, v := range pred {
			d := v - s.Target[h]
			sum += d * d
		}
		count += len(pred)
	}
	return sum / float64(count), nil
}

// Split keeps order: the first frac of samples trains, the rest validates
func Split(samples []Sample, frac float64) (train, val []Sample) {
	cut := int(float64(len(samples)) * frac)
	cut = max(0, min(cut, len(samples)))
	return samples[:cut], samples[cut:]
}

// plateau reduces the learning rate when the monitored loss stops improving
type plateau struct {
	factor    float64
	patience  int
	threshold float64
	best      float64
	bad       int
}

func (p *plateau) step(loss float64) bool {
	if loss < p.best*(1-p.threshold) {
		p.best = loss
		p.bad = 0
		return false
	}
	p.bad++
	if p.bad > p.patience {
		p.bad = 0
		return true
	}
	return false
}
