package classify

import (
	"strings"

	"threatharvest/core"
)

// =============================================================================
// Severity Scoring
// =============================================================================

const (
	baseSeverity = 5
	minSeverity  = 1
	maxSeverity  = 10
)

// highSeverityCategories raise the score by one when any of them is
// present, at most once.
var highSeverityCategories = map[string]bool{
	"zero_day":    true,
	"apt":         true,
	"ransomware":  true,
	"data_breach": true,
}

// urgencyKeywords raise the score by one when any occurs in the
// lower-cased text, at most once.
var urgencyKeywords = []string{
	"critical", "критический", "urgent", "срочный", "zero-day", "нулевой день",
}

// Score computes the deterministic 1-10 severity of a classified record:
// base 5, +1 for a high-severity category, +1 for an urgency keyword in
// the text, plus min(iocCount/2, 2) for indicator volume, clamped to the
// valid range.
func Score(categories []string, text string, iocs core.IOCSet) int {
	score := baseSeverity

	for _, category := range categories {
		if highSeverityCategories[category] {
			score++
			break
		}
	}

	lowered := strings.ToLower(text)
	for _, keyword := range urgencyKeywords {
		if strings.Contains(lowered, keyword) {
			score++
			break
		}
	}

	if bonus := iocs.Count() / 2; bonus > 0 {
		if bonus > 2 {
			bonus = 2
		}
		score += bonus
	}

	if score < minSeverity {
		score = minSeverity
	}
	if score > maxSeverity {
		score = maxSeverity
	}
	return score
}
