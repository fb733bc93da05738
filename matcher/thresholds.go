package matcher

// confidenceFloor is the distance at which display confidence reaches zero.
const confidenceFloor = 0.6

// ConfidenceLevel describes how trustworthy a single match is.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// Thresholds holds the distance cutoffs used to classify a match. A session
// carries its own copy taken at dispatch time, so classification is a pure
// function of (distance, that copy) and stays reproducible after the global
// configuration moves.
type Thresholds struct {
	High    float64 // below this: HIGH confidence, auto match
	Medium  float64 // below this (and >= High): MEDIUM confidence, flagged for review
	Version string
}

// Classify maps a distance to a confidence level under these thresholds.
func (t Thresholds) Classify(distance float64) ConfidenceLevel {
	switch {
	case distance < t.High:
		return ConfidenceHigh
	case distance < t.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidencePercent converts a distance to a display percentage. It is
// derived for the review UI only and plays no part in classification:
// 100 at distance 0, falling linearly to 0 at and beyond 0.6.
func ConfidencePercent(distance float64) float64 {
	if distance >= confidenceFloor {
		return 0
	}
	if distance < 0 {
		distance = 0
	}
	return (1 - distance/confidenceFloor) * 100
}
