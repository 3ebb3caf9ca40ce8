// Package severity assigns a priority tier to incident descriptions using a
// fixed keyword rule table. It is pure and deterministic: the same description
// always yields the same tier and score.
package severity

import "strings"

// Tier is the derived priority classification of an incident.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierNormal   Tier = "NORMAL"
)

// Marker weights. Every marker present in the description contributes its
// weight once; matches accumulate across both lists.
const (
	criticalWeight = 0.4
	highWeight     = 0.25
)

// The rule table is fixed. Markers are matched as case-insensitive substrings
// of the description; the source data is Spanish-language support tickets.
var (
	criticalMarkers = []string{"urgente", "fuego", "crash", "caída", "servidor", "error crítico"}
	highMarkers     = []string{"fallo", "no funciona", "bloqueado", "lento"}
)

// Classify scores a description against the marker lists and maps the final
// score to a tier. Thresholds are evaluated high to low: >=0.4 CRITICAL,
// >=0.25 HIGH, >0 MEDIUM, otherwise NORMAL with a score of exactly 0.
func Classify(description string) (Tier, float64) {
	lower := strings.ToLower(description)

	var score float64
	for _, m := range criticalMarkers {
		if strings.Contains(lower, m) {
			score += criticalWeight
		}
	}
	for _, m := range highMarkers {
		if strings.Contains(lower, m) {
			score += highWeight
		}
	}

	switch {
	case score >= 0.4:
		return TierCritical, score
	case score >= 0.25:
		return TierHigh, score
	case score > 0:
		return TierMedium, score
	default:
		return TierNormal, 0.0
	}
}
