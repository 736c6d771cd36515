package preprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scaler maps each feature column to [0,1] using per-column bounds fitted on
// the training corpus. Constant columns get Max = Min + 1 so transform never
// divides by zero; such a column always maps to 0.
//
// A fitted Scaler is immutable and safe for concurrent use.
type Scaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// Fit computes per-column bounds over every row of m
func Fit(m [][]float64) (*Scaler, error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return nil, fmt.Errorf("preprocess: cannot fit scaler on empty matrix")
	}
	width := len(m[0])
	s := &Scaler{
		Min: append([]float64(nil), m[0]...),
		Max: append([]float64(nil), m[0]...),
	}
	for i, row := range m {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrSchemaMismatch, i, len(row), width)
		}
		for j, v := range row {
			s.Min[j] = min(s.Min[j], v)
			s.Max[j] = max(s.Max[j], v)
		}
	}
	for j := range s.Max {
		if s.Max[j] == s.Min[j] {
			s.Max[j] = s.Min[j] + 1.0
		}
	}
	return s, nil
}

// FitTransform fits a scaler on m and returns it with the scaled matrix
func FitTransform(m [][]float64) (*Scaler, [][]float64, error) {
	s, err := Fit(m)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := s.Transform(m)
	if err != nil {
		return nil, nil, err
	}
	return s, scaled, nil
}

// Fitted reports whether bounds are present and consistent
func (s *Scaler) Fitted() bool {
	return s != nil && len(s.Min) > 0 && len(s.Min) == len(s.Max)
}

// Width is the number of feature columns the scaler was fitted on
func (s *Scaler) Width() int {
	if !s.Fitted() {
		return 0
	}
	return len(s.Min)
}

// CheckSchema fails unless the scaler was fitted on schema-width vectors
func (s *Scaler) CheckSchema(schema Schema) error {
	if !s.Fitted() {
		return ErrNotFitted
	}
	if s.Width() != schema.Len() {
		return fmt.Errorf("%w: scaler has %d features, schema has %d", ErrSchemaMismatch, s.Width(), schema.Len())
	}
	return nil
}

// Transform scales every row of m; m is not modified
func (s *Scaler) Transform(m [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != len(s.Min) {
			return nil, fmt.Errorf("%w: row %d has %d columns, scaler has %d", ErrSchemaMismatch, i, len(row), len(s.Min))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Min[j]) / (s.Max[j] - s.Min[j])
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformTarget scales raw values of a single column
func (s *Scaler) TransformTarget(values []float64, target int) ([]float64, error) {
	lo, hi, err := s.bounds(target)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out, nil
}

// InverseTarget maps normalised values of the target column back to its
// original domain. Only model outputs go through here, never full vectors.
func (s *Scaler) InverseTarget(scaled []float64, target int) ([]float64, error) {
	lo, hi, err := s.bounds(target)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(scaled))
	for i, v := range scaled {
		out[i] = v*(hi-lo) + lo
	}
	return out, nil
}

func (s *Scaler) bounds(col int) (float64, float64, error) {
	if !s.Fitted() {
		return 0, 0, ErrNotFitted
	}
	if col < 0 || col >= len(s.Min) {
		return 0, 0, fmt.Errorf("%w: column %d out of range", ErrSchemaMismatch, col)
	}
	return s.Min[col], s.Max[col], nil
}

// Save writes the two bound arrays as JSON
func (s *Scaler) Save(path string) error {
	if !s.Fitted() {
		return ErrNotFitted
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("preprocess: failed to marshal scaler: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("preprocess: failed to create scaler dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("preprocess: failed to write scaler: %w", err)
	}
	return nil
}

// LoadScaler restores a scaler written by Save
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preprocess: failed to read scaler: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("preprocess: failed to decode scaler: %w", err)
	}
	if !s.Fitted() {
		return nil, fmt.Errorf("%w: min/max arrays are empty or differ in length", ErrSchemaMismatch)
	}
	return &s, nil
}
