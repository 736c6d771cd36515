// Package preprocess turns raw segment readings into model-ready matrices:
// the ordered feature schema, cyclic and event-impact features, the min-max
// scaler and the per-segment sliding window generator.
package preprocess

import (
	"errors"
	"fmt"
)

const (
	// DefaultInputWindow is the number of hourly readings fed to the model
	DefaultInputWindow = 24
	// DefaultForecastHorizon is the number of hourly steps predicted
	DefaultForecastHorizon = 6
	// TargetColumn is the forecast target; it is also an input feature
	TargetColumn = "congestion_level"
)

var (
	ErrNotFitted      = errors.New("preprocess: scaler is not fitted")
	ErrSchemaMismatch = errors.New("preprocess: feature schema mismatch")
	ErrTooShort       = errors.New("preprocess: series too short for window")
)

// BaseColumns is the fixed feature order. Reordering invalidates every
// persisted scaler and model.
var BaseColumns = []string{
	"hourly_speed_kph",
	"avg_speed_kph",
	"travel_time_s",
	"delay_ratio",
	TargetColumn,
	"accident_hotspot_score",
	"recent_incident_count",
	"enforcement_violation_pattern",
	"long_term_risk_prior",
	"hour_sin",
	"hour_cos",
	"dow_sin",
	"dow_cos",
	"is_weekend",
}

// EventColumns are appended only when a model was trained with event context
var EventColumns = []string{
	"event_impact_score",
	"concert_nearby",
	"sports_nearby",
	"event_density",
	"high_impact_event",
}

// Schema is an ordered list of feature columns plus the target position
type Schema struct {
	Columns []string
	Target  int
}

// DefaultSchema returns the 14-column schema without event features
func DefaultSchema() Schema {
	return NewSchema(false)
}

// NewSchema returns the base schema, optionally extended with event columns
func NewSchema(withEvents bool) Schema {
	cols := append([]string(nil), BaseColumns...)
	if withEvents {
		cols = append(cols, EventColumns...)
	}
	return Schema{Columns: cols, Target: indexOf(cols, TargetColumn)}
}

// Len is the number of features per vector
func (s Schema) Len() int { return len(s.Columns) }

// HasEvents reports whether event features are part of the schema
func (s Schema) HasEvents() bool {
	return indexOf(s.Columns, EventColumns[0]) >= 0
}

// Validate checks every column is known and the target is present
func (s Schema) Validate() error {
	for _, c := range s.Columns {
		if _, ok := extractors[c]; !ok {
			return fmt.Errorf("%w: unknown column %q", ErrSchemaMismatch, c)
		}
	}
	if s.Target < 0 || s.Target >= len(s.Columns) || s.Columns[s.Target] != TargetColumn {
		return fmt.Errorf("%w: target column %q not at index %d", ErrSchemaMismatch, TargetColumn, s.Target)
	}
	return nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
