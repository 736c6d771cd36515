package preprocess

import (
	"fmt"
	"sort"

	"github.com/smartcity/congestion/internal/domain"
)

// Pair is one supervised training example.
// Input is features-major (features × inputWindow); Target holds the next
// horizon values of the target column.
type Pair struct {
	RoadID string
	Input  [][]float64
	Target []float64
}

// Windows slides over one segment's chronologically sorted, scaled matrix and
// returns len(data) - (inputWindow + horizon) + 1 pairs. Windows are index
// based, so gaps in wall-clock time are tolerated.
func Windows(data [][]float64, inputWindow, horizon, target int) ([]Pair, error) {
	total := inputWindow + horizon
	if inputWindow <= 0 || horizon <= 0 {
		return nil, fmt.Errorf("preprocess: invalid window %d/%d", inputWindow, horizon)
	}
	if len(data) < total {
		return nil, fmt.Errorf("%w: need at least %d rows, got %d", ErrTooShort, total, len(data))
	}
	if target < 0 || target >= len(data[0]) {
		return nil, fmt.Errorf("%w: target column %d out of range", ErrSchemaMismatch, target)
	}

	n := len(data) - total + 1
	pairs := make([]Pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = Pair{
			Input:  Transpose(data[i : i+inputWindow]),
			Target: column(data[i+inputWindow:i+total], target),
		}
	}
	return pairs, nil
}

func column(rows [][]float64, col int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[col]
	}
	return out
}

// Series is the ordered readings of one segment
type Series struct {
	RoadID   string
	Readings []domain.Reading
}

// GroupBySegment splits readings by road id (sorted) and orders each group by
// time. Repeated timestamps within a segment keep their first reading.
func GroupBySegment(readings []domain.Reading) []Series {
	groups := make(map[string][]domain.Reading)
	for _, r := range readings {
		groups[r.RoadID] = append(groups[r.RoadID], r)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Series, 0, len(ids))
	for _, id := range ids {
		rows := groups[id]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		})
		uniq := rows[:0]
		for _, r := range rows {
			if len(uniq) > 0 && r.Timestamp.Equal(uniq[len(uniq)-1].Timestamp) {
				continue
			}
			uniq = append(uniq, r)
		}
		out = append(out, Series{RoadID: id, Readings: uniq})
	}
	return out
}

// TrainingSet is the output of PrepareTrainingData
type TrainingSet struct {
	Pairs   []Pair
	Scaler  *Scaler
	Skipped []string // segments shorter than one window
}

// PrepareTrainingData builds features, fits the scaler over the whole corpus
// and generates windows independently per segment, so no window ever spans two
// segments. Events may be nil when the schema has no event columns.
func PrepareTrainingData(readings []domain.Reading, schema Schema, events []domain.Event, inputWindow, horizon int) (*TrainingSet, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	series := GroupBySegment(readings)

	matrices := make([][][]float64, len(series))
	var all [][]float64
	for i, s := range series {
		matrices[i] = BuildMatrix(schema, s.Readings, events)
		all = append(all, matrices[i]...)
	}

	scaler, err := Fit(all)
	if err != nil {
		return nil, err
	}

	set := &TrainingSet{Scaler: scaler}
	for i, s := range series {
		if len(matrices[i]) < inputWindow+horizon {
			set.Skipped = append(set.Skipped, s.RoadID)
			continue
		}
		scaled, err := scaler.Transform(matrices[i])
		if err != nil {
			return nil, err
		}
		pairs, err := Windows(scaled, inputWindow, horizon, schema.Target)
		if err != nil {
			return nil, fmt.Errorf("preprocess: segment %s: %w", s.RoadID, err)
		}
		for j := range pairs {
			pairs[j].RoadID = s.RoadID
		}
		set.Pairs = append(set.Pairs, pairs...)
	}

	if len(set.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no segment has %d readings", ErrTooShort, inputWindow+horizon)
	}
	return set, nil
}
