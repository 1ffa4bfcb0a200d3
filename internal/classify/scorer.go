package classify

import (
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// categoryDeltas are the additive score adjustments per category.
var categoryDeltas = map[model.Category]int{
	model.CategoryClient:   30,
	model.CategoryDeal:     25,
	model.CategoryLead:     20,
	model.CategoryInternal: 10,
	model.CategoryUnknown:  5,
	model.CategoryVendor:   0,
	model.CategoryNoise:    -30,
}

// Score computes a priority score in [0, 100] and its coarse level.
// The score starts at 50 and applies the category delta, a recency
// adjustment measured against now, an unread bonus, and a high
// importance bonus, then clamps.
func Score(
	category model.Category,
	receivedAt time.Time,
	isRead bool,
	importance model.Importance,
	now time.Time,
) (int, model.PriorityLevel) {
	score := 50
	score += categoryDeltas[category]

	age := now.Sub(receivedAt)
	switch {
	case age < 2*time.Hour:
		score += 10
	case age > 48*time.Hour:
		score -= 10
	}

	if !isRead {
		score += 5
	}
	if importance == model.ImportanceHigh {
		score += 15
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, LevelForScore(score)
}

// LevelForScore maps a score to its priority level.
func LevelForScore(score int) model.PriorityLevel {
	switch {
	case score >= 70:
		return model.PriorityHigh
	case score >= 40:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// ActionRequired reports whether a message needs operator attention:
// a business-relevant category scored at or above the midpoint.
func ActionRequired(category model.Category, score int) bool {
	switch category {
	case model.CategoryClient, model.CategoryDeal, model.CategoryLead:
		return score >= 50
	default:
		return false
	}
}
