package service

import (
	"math/rand/v2"
	"time"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/pkg/utils"
)

// segmentLengthKm is the nominal stretch length used for travel times
const segmentLengthKm = 2.5

// DefaultSegments is the canonical Mumbai segment set served without a database
func DefaultSegments() []domain.Segment {
	return []domain.Segment{
		{RoadID: "AKR_2", RoadName: "Western Express Highway", SegmentName: "Andheri-Kurla Rd", Lat: 19.1136, Lon: 72.8697, RoadClass: "arterial"},
		{RoadID: "BPT_11", RoadName: "Bandra Kurla Complex", SegmentName: "BKC Connector", Lat: 19.0679, Lon: 72.8679, RoadClass: "arterial"},
		{RoadID: "ETW_7", RoadName: "Eastern Freeway", SegmentName: "Chembur Ramp", Lat: 19.0485, Lon: 72.8785, RoadClass: "expressway"},
		{RoadID: "WOR_4", RoadName: "Worli Sea Face", SegmentName: "Worli Promenade", Lat: 19.0169, Lon: 72.8177, RoadClass: "coastal"},
		{RoadID: "SCLR_3", RoadName: "Santacruz-Chembur Link Rd", SegmentName: "SCLR Elevated", Lat: 19.0807, Lon: 72.8694, RoadClass: "arterial"},
	}
}

// TrafficSimulator generates hourly readings with realistic daily patterns.
// It backs the in-memory repository when Postgres is unreachable.
type TrafficSimulator struct {
	rng *rand.Rand
}

// NewTrafficSimulator creates a deterministic simulator for seed
func NewTrafficSimulator(seed uint64) *TrafficSimulator {
	return &TrafficSimulator{rng: rand.New(rand.NewPCG(seed, 0))}
}

// GenerateAll produces `hours` readings per segment ending just before end
func (s *TrafficSimulator) GenerateAll(segments []domain.Segment, end time.Time, hours int) []domain.Reading {
	start := end.Truncate(time.Hour).Add(-time.Duration(hours) * time.Hour)
	out := make([]domain.Reading, 0, len(segments)*hours)
	for _, seg := range segments {
		out = append(out, s.Generate(seg, start, hours)...)
	}
	return out
}

// Generate produces `hours` consecutive hourly readings for one segment
func (s *TrafficSimulator) Generate(seg domain.Segment, start time.Time, hours int) []domain.Reading {
	start = start.Truncate(time.Hour)
	freeFlow := freeFlowSpeed(seg.RoadClass)
	weight := classWeight(seg.RoadClass)
	freeFlowTime := segmentLengthKm / freeFlow * 3600

	readings := make([]domain.Reading, hours)
	for i := range readings {
		ts := start.Add(time.Duration(i) * time.Hour)
		dow := domain.WeekdayIndex(ts)
		weekend := 0
		if dow >= 5 {
			weekend = 1
		}

		index := s.calculateCongestionIndex(ts.Hour(), ts.Weekday())
		level := utils.Clamp(index*weight/100, 0, 1)
		speed := freeFlow * (1 - 0.8*level)
		travel := segmentLengthKm / speed * 3600

		readings[i] = domain.Reading{
			RoadID:                      seg.RoadID,
			RoadName:                    seg.RoadName,
			SegmentName:                 seg.SegmentName,
			Lat:                         seg.Lat,
			Lon:                         seg.Lon,
			RoadClass:                   seg.RoadClass,
			Timestamp:                   ts,
			Hour:                        ts.Hour(),
			DayOfWeek:                   dow,
			IsWeekend:                   weekend,
			Month:                       int(ts.Month()),
			HourlySpeedKph:              utils.RoundTo(speed, 2),
			AvgSpeedKph:                 utils.RoundTo(freeFlow*(1-0.7*level), 2),
			TravelTimeS:                 utils.RoundTo(travel, 1),
			FreeFlowSpeedKph:            freeFlow,
			FreeFlowTravelTimeS:         utils.RoundTo(freeFlowTime, 1),
			DelayRatio:                  utils.RoundTo(travel/freeFlowTime, 3),
			CongestionLevel:             utils.RoundTo(level, 4),
			CongestionBand:              BandFromScore(level),
			AccidentHotspotScore:        utils.RoundTo(utils.Clamp(0.2+0.5*level+(s.rng.Float64()-0.5)*0.1, 0, 1), 3),
			RecentIncidentCount:         int(index / 20),
			EnforcementViolationPattern: utils.RoundTo(0.1+0.3*level, 3),
			LongTermRiskPrior:           0.3 + 0.1*weight,
		}
	}
	return readings
}

// calculateCongestionIndex returns 0-100 based on time patterns
func (s *TrafficSimulator) calculateCongestionIndex(hour int, weekday time.Weekday) float64 {
	// Weekend: less traffic
	if weekday == time.Saturday || weekday == time.Sunday {
		return 25 + s.rng.Float64()*20
	}

	// Rush hours
	switch {
	case hour >= 8 && hour <= 11: // Morning rush
		return 70 + s.rng.Float64()*25
	case hour >= 17 && hour <= 20: // Evening rush
		return 75 + s.rng.Float64()*20
	case hour >= 12 && hour <= 14: // Lunch
		return 50 + s.rng.Float64()*15
	case hour >= 23 || hour <= 5: // Night
		return 10 + s.rng.Float64()*10
	default:
		return 35 + s.rng.Float64()*20
	}
}

func freeFlowSpeed(roadClass string) float64 {
	switch roadClass {
	case "expressway":
		return 80
	case "coastal":
		return 50
	default:
		return 45
	}
}

// classWeight scales the time-of-day pattern per road class
func classWeight(roadClass string) float64 {
	switch roadClass {
	case "expressway":
		return 0.85
	case "arterial":
		return 1.05
	default:
		return 1.0
	}
}
