package preprocess

import (
	"log"
	"math"

	"github.com/smartcity/congestion/internal/domain"
)

// featureRow is a reading plus its derived features
type featureRow struct {
	r                                *domain.Reading
	hourSin, hourCos, dowSin, dowCos float64
	ev                               EventFeatures
}

var extractors = map[string]func(*featureRow) float64{
	"hourly_speed_kph":              func(f *featureRow) float64 { return f.r.HourlySpeedKph },
	"avg_speed_kph":                 func(f *featureRow) float64 { return f.r.AvgSpeedKph },
	"travel_time_s":                 func(f *featureRow) float64 { return f.r.TravelTimeS },
	"delay_ratio":                   func(f *featureRow) float64 { return f.r.DelayRatio },
	TargetColumn:                    func(f *featureRow) float64 { return f.r.CongestionLevel },
	"accident_hotspot_score":        func(f *featureRow) float64 { return f.r.AccidentHotspotScore },
	"recent_incident_count":         func(f *featureRow) float64 { return float64(f.r.RecentIncidentCount) },
	"enforcement_violation_pattern": func(f *featureRow) float64 { return f.r.EnforcementViolationPattern },
	"long_term_risk_prior":          func(f *featureRow) float64 { return f.r.LongTermRiskPrior },
	"hour_sin":                      func(f *featureRow) float64 { return f.hourSin },
	"hour_cos":                      func(f *featureRow) float64 { return f.hourCos },
	"dow_sin":                       func(f *featureRow) float64 { return f.dowSin },
	"dow_cos":                       func(f *featureRow) float64 { return f.dowCos },
	"is_weekend":                    func(f *featureRow) float64 { return float64(f.r.IsWeekend) },
	"event_impact_score":            func(f *featureRow) float64 { return f.ev.ImpactScore },
	"concert_nearby":                func(f *featureRow) float64 { return float64(f.ev.ConcertNearby) },
	"sports_nearby":                 func(f *featureRow) float64 { return float64(f.ev.SportsNearby) },
	"event_density":                 func(f *featureRow) float64 { return float64(f.ev.Density) },
	"high_impact_event":             func(f *featureRow) float64 { return float64(f.ev.HighImpact) },
}

// CyclicTime encodes hour (0-23) and day of week (0-6) on the unit circle so
// that hour 23 sits next to hour 0.
func CyclicTime(hour, dayOfWeek int) (hourSin, hourCos, dowSin, dowCos float64) {
	hAngle := 2 * math.Pi * float64(hour) / 24.0
	dAngle := 2 * math.Pi * float64(dayOfWeek) / 7.0
	return math.Sin(hAngle), math.Cos(hAngle), math.Sin(dAngle), math.Cos(dAngle)
}

// Vector projects one reading through the schema.
func (s Schema) Vector(r domain.Reading, ev EventFeatures) []float64 {
	row := featureRow{r: &r, ev: ev}
	row.hourSin, row.hourCos, row.dowSin, row.dowCos = CyclicTime(r.Hour, r.DayOfWeek)

	out := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = extractors[c](&row)
	}
	return out
}

// BuildMatrix converts ordered readings into a (rows × features) matrix.
// When the schema carries event columns, events are matched per reading;
// a nil event list yields all-zero event features.
func BuildMatrix(schema Schema, readings []domain.Reading, events []domain.Event) [][]float64 {
	withEvents := schema.HasEvents()
	if withEvents && events == nil {
		log.Println("No events provided - using placeholder event features")
	}

	m := make([][]float64, len(readings))
	for i, r := range readings {
		var ev EventFeatures
		if withEvents && events != nil {
			ev = ComputeEventFeatures(r.Lat, r.Lon, r.Timestamp, events)
		}
		m[i] = schema.Vector(r, ev)
	}
	return m
}

// Transpose turns a (time × features) matrix into the features-major layout
// the model consumes.
func Transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for f := range out {
		out[f] = make([]float64, len(m))
		for t := range m {
			out[f][t] = m[t][f]
		}
	}
	return out
}
