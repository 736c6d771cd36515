package tcn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the config and every parameter and running statistic as JSON
func (n *Network) Save(path string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("tcn: failed to marshal network: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tcn: failed to create model dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tcn: failed to write model: %w", err)
	}
	return nil
}

// Load restores weights written by Save. The stored config must equal
// expected and every tensor must have the size expected implies; anything
// else fails with ErrArchitecture rather than being reshaped.
func Load(path string, expected Config) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tcn: failed to read model: %w", err)
	}
	return Decode(data, expected)
}

// Decode is Load over an in-memory payload
func Decode(data []byte, expected Config) (*Network, error) {
	if err := expected.Validate(); err != nil {
		return nil, err
	}
	var stored Network
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("tcn: failed to decode model: %w", err)
	}
	if !stored.Config.Equal(expected) {
		return nil, fmt.Errorf("%w: stored %+v, expected %+v", ErrArchitecture, stored.Config, expected)
	}
	if err := stored.checkLayout(); err != nil {
		return nil, err
	}
	return &stored, nil
}

// checkLayout compares every tensor against a freshly built skeleton
func (n *Network) checkLayout() error {
	want := skeleton(n.Config)
	if len(n.Blocks) != len(want.Blocks) || n.Head == nil {
		return fmt.Errorf("%w: %d blocks, want %d", ErrArchitecture, len(n.Blocks), len(want.Blocks))
	}
	for i, b := range n.Blocks {
		w := want.Blocks[i]
		if b == nil || b.Conv1 == nil || b.Conv2 == nil || b.Norm1 == nil || b.Norm2 == nil {
			return fmt.Errorf("%w: block %d is incomplete", ErrArchitecture, i)
		}
		if (b.Downsample == nil) != (w.Downsample == nil) {
			return fmt.Errorf("%w: block %d residual projection mismatch", ErrArchitecture, i)
		}
		if !sameConv(b.Conv1, w.Conv1) || !sameConv(b.Conv2, w.Conv2) ||
			(w.Downsample != nil && !sameConv(b.Downsample, w.Downsample)) {
			return fmt.Errorf("%w: block %d convolution shape mismatch", ErrArchitecture, i)
		}
		if b.Dilation != w.Dilation {
			return fmt.Errorf("%w: block %d dilation %d, want %d", ErrArchitecture, i, b.Dilation, w.Dilation)
		}
	}
	if n.Head.In != want.Head.In || n.Head.Out != want.Head.Out {
		return fmt.Errorf("%w: head is %dx%d, want %dx%d", ErrArchitecture, n.Head.In, n.Head.Out, want.Head.In, want.Head.Out)
	}

	got, exp := n.parameters(), want.parameters()
	for i := range exp {
		if len(got[i]) != len(exp[i]) {
			return fmt.Errorf("%w: parameter %d has %d values, want %d", ErrArchitecture, i, len(got[i]), len(exp[i]))
		}
	}
	got, exp = n.buffers(), want.buffers()
	for i := range exp {
		if len(got[i]) != len(exp[i]) {
			return fmt.Errorf("%w: running statistic %d has %d values, want %d", ErrArchitecture, i, len(got[i]), len(exp[i]))
		}
	}
	return nil
}

func sameConv(a, b *Conv1d) bool {
	return a.In == b.In && a.Out == b.Out && a.Kernel == b.Kernel && a.Dilation == b.Dilation
}
