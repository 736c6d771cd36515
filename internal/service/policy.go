package service

import "github.com/smartcity/congestion/pkg/utils"

// Congestion bands by fraction of full congestion
const (
	BandFree     = "Free"
	BandLight    = "Light"
	BandModerate = "Moderate"
	BandHeavy    = "Heavy"
	BandSevere   = "Severe"
)

// Alert levels, most to least urgent
const (
	AlertSevere   = "severe"
	AlertHigh     = "high_risk"
	AlertIncident = "incident"
	AlertStable   = "stable"
)

const (
	// liveWeight is the share of the live observation in the anchored +1h value
	liveWeight = 0.7
	// maxAnchored caps the anchored +1h fraction
	maxAnchored = 0.95

	severeThreshold   = 0.7
	highRiskThreshold = 0.6
	incidentThreshold = 2
)

var alertMessages = map[string]string{
	AlertSevere:   "SEVERE congestion expected within 1 hour",
	AlertHigh:     "High congestion risk ahead",
	AlertIncident: "Incident-driven congestion possible",
	AlertStable:   "Traffic conditions expected to remain stable",
}

// BandFromScore maps a congestion fraction in [0,1] to its band
func BandFromScore(score float64) string {
	switch {
	case score < 0.2:
		return BandFree
	case score < 0.4:
		return BandLight
	case score < 0.6:
		return BandModerate
	case score < 0.8:
		return BandHeavy
	default:
		return BandSevere
	}
}

// Alert classifies the +1h and +2h fractions and the latest incident count.
// Rules are checked in order; thresholds are strict except the incident count.
func Alert(plus1h, plus2h float64, incidents int) (level, message string) {
	switch {
	case plus1h > severeThreshold:
		level = AlertSevere
	case plus1h > highRiskThreshold || plus2h > severeThreshold:
		level = AlertHigh
	case incidents >= incidentThreshold:
		level = AlertIncident
	default:
		level = AlertStable
	}
	return level, alertMessages[level]
}

// Anchor blends a live congestion percentage (0-100) with the model's +1h
// fraction: 0.7 live + 0.3 model, capped at 0.95.
func Anchor(livePct, modelFraction float64) float64 {
	live := utils.Clamp(livePct, 0, 100) / 100
	model := utils.Clamp(modelFraction, 0, 1)
	return utils.Clamp(utils.Lerp(model, live, liveWeight), 0, maxAnchored)
}
