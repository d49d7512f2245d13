package models

// RiskLevel bands a numeric risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// LevelForScore maps a 0-100 score to a risk level. This is the single
// banding function used everywhere a score is classified; no component
// carries its own thresholds.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 75:
		return RiskLevelCritical
	case score >= 50:
		return RiskLevelHigh
	case score >= 25:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RiskAssessment is the immutable result of scoring one message or
// participant. It is recomputed wholesale when source data changes,
// never patched in place.
type RiskAssessment struct {
	Score int      `json:"score"`
	Flags []string `json:"flags"`
}

// Level returns the banded level for this assessment's score
func (r *RiskAssessment) Level() RiskLevel {
	return LevelForScore(float64(r.Score))
}
