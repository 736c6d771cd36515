// Package tcn implements the temporal convolutional forecaster: causal dilated
// convolutions, batch normalisation, residual temporal blocks and a linear
// head over the last time step. Inference is read-only over the parameters and
// safe for concurrent use; training goes through a Trainer.
package tcn

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrShape is returned when an input does not match the configured layout
	ErrShape = errors.New("tcn: input shape mismatch")
	// ErrArchitecture is returned when persisted weights do not match the expected config
	ErrArchitecture = errors.New("tcn: architecture mismatch")
)

// Config fixes the architecture. Persisted weights are only valid for the
// exact config they were trained with.
type Config struct {
	NumFeatures int     `json:"num_features"`
	Channels    []int   `json:"channels"`
	KernelSize  int     `json:"kernel_size"`
	Dilations   []int   `json:"dilations"`
	Dropout     float64 `json:"dropout"`
	Horizon     int     `json:"horizon"`
	SeqLen      int     `json:"seq_len"`
}

// DefaultConfig is four 64-channel blocks with dilations 1, 2, 4, 8 over a
// 24-step window and a 6-step horizon.
func DefaultConfig(numFeatures int) Config {
	return Config{
		NumFeatures: numFeatures,
		Channels:    []int{64, 64, 64, 64},
		KernelSize:  3,
		Dilations:   []int{1, 2, 4, 8},
		Dropout:     0.3,
		Horizon:     6,
		SeqLen:      24,
	}
}

// Validate checks the config describes a buildable network
func (c Config) Validate() error {
	switch {
	case c.NumFeatures <= 0:
		return fmt.Errorf("%w: num_features must be positive", ErrArchitecture)
	case len(c.Channels) == 0:
		return fmt.Errorf("%w: at least one block is required", ErrArchitecture)
	case len(c.Channels) != len(c.Dilations):
		return fmt.Errorf("%w: %d channel widths but %d dilations", ErrArchitecture, len(c.Channels), len(c.Dilations))
	case c.KernelSize <= 0:
		return fmt.Errorf("%w: kernel_size must be positive", ErrArchitecture)
	case c.Horizon <= 0:
		return fmt.Errorf("%w: horizon must be positive", ErrArchitecture)
	case c.SeqLen <= 0:
		return fmt.Errorf("%w: seq_len must be positive", ErrArchitecture)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout %.2f outside [0,1)", ErrArchitecture, c.Dropout)
	}
	for i := range c.Channels {
		if c.Channels[i] <= 0 || c.Dilations[i] <= 0 {
			return fmt.Errorf("%w: block %d has non-positive width or dilation", ErrArchitecture, i)
		}
	}
	return nil
}

// ReceptiveField is the number of input steps visible to the last output step
func (c Config) ReceptiveField() int {
	sum := 0
	for _, d := range c.Dilations {
		sum += d
	}
	return 1 + 2*(c.KernelSize-1)*sum
}

// Equal reports whether two configs describe the same architecture
func (c Config) Equal(o Config) bool {
	return c.NumFeatures == o.NumFeatures &&
		slices.Equal(c.Channels, o.Channels) &&
		c.KernelSize == o.KernelSize &&
		slices.Equal(c.Dilations, o.Dilations) &&
		c.Dropout == o.Dropout &&
		c.Horizon == o.Horizon &&
		c.SeqLen == o.SeqLen
}
