// services/tier.go
package services

import (
	"sort"

	"bargain-arcade/models"
)

// boundedTier is the normalized internal tier shape. Configs historically
// stored tiers two ways — open-ended {minScore, discount} and bounded
// {minScore, maxScore, discount}. Normalizing to a bounded form up front
// keeps the resolver itself trivial.
type boundedTier struct {
	MinScore int
	MaxScore int // models.MaxScore for the top tier
	Discount int
}

// normalizeTiers sorts tiers by ascending MinScore and closes every open
// range at the next tier's threshold. An explicit MaxScore wins over the
// derived bound. The top tier is always open to models.MaxScore.
func normalizeTiers(tiers []models.DiscountTier) []boundedTier {
	if len(tiers) == 0 {
		return nil
	}

	sorted := make([]models.DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	out := make([]boundedTier, 0, len(sorted))
	for i, t := range sorted {
		max := models.MaxScore
		if i+1 < len(sorted) {
			max = sorted[i+1].MinScore - 1
		}
		if t.MaxScore != nil && *t.MaxScore < max {
			max = *t.MaxScore
		}
		out = append(out, boundedTier{MinScore: t.MinScore, MaxScore: max, Discount: t.Discount})
	}
	return out
}

// ResolveTier returns the discount percent earned by score: the highest tier
// whose range contains the score. A score below the lowest threshold earns 0.
func ResolveTier(score int, tiers []models.DiscountTier) int {
	normalized := normalizeTiers(tiers)
	for i := len(normalized) - 1; i >= 0; i-- {
		t := normalized[i]
		if score >= t.MinScore && score <= t.MaxScore {
			return t.Discount
		}
	}
	return 0
}

// NextTierThreshold returns the smallest tier threshold strictly above score,
// or nil when the top tier is already reached (or no tiers exist).
func NextTierThreshold(score int, tiers []models.DiscountTier) *int {
	var next *int
	for _, t := range normalizeTiers(tiers) {
		if t.MinScore > score {
			min := t.MinScore
			next = &min
			break
		}
	}
	return next
}
