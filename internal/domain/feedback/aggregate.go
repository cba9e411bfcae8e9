package feedback

import (
	"fmt"
	"strings"

	"github.com/okian/accessreg/internal/domain/model"
)

// Rounding selects how an average rating is reduced to an integer.
type Rounding string

// Supported rounding rules.
const (
	RoundTruncate Rounding = "truncate"
	RoundHalfUp   Rounding = "half_up"
)

// ParseRounding accepts "truncate" (or "") and "half_up".
func ParseRounding(v string) (Rounding, error) {
	switch r := Rounding(strings.ToLower(strings.TrimSpace(v))); r {
	case "", RoundTruncate:
		return RoundTruncate, nil
	case RoundHalfUp:
		return RoundHalfUp, nil
	default:
		return "", fmt.Errorf("unknown rounding %q", v)
	}
}

// Pair identifies a (facility, category) aggregate.
type Pair struct {
	FacilityID uint64
	Category   uint32
}

// Apply folds one entry into its aggregate.
func Apply(agg model.CategoryRating, e model.FeedbackEntry) model.CategoryRating {
	agg.FacilityID = e.FacilityID
	agg.Category = e.Category
	agg.TotalRatings++
	agg.SumRatings += uint64(e.Rating)
	agg.LastUpdated = e.Date
	return agg
}

// Replay rebuilds every aggregate from entries in submission order.
func Replay(entries []model.FeedbackEntry) map[Pair]model.CategoryRating {
	out := make(map[Pair]model.CategoryRating)
	for _, e := range entries {
		p := Pair{FacilityID: e.FacilityID, Category: e.Category}
		out[p] = Apply(out[p], e)
	}
	return out
}

// Average returns the aggregate's mean rating under rounding. An empty
// aggregate averages to zero.
func Average(agg model.CategoryRating, rounding Rounding) uint64 {
	if agg.TotalRatings == 0 {
		return 0
	}
	if rounding == RoundHalfUp {
		return (2*agg.SumRatings + agg.TotalRatings) / (2 * agg.TotalRatings)
	}
	return agg.SumRatings / agg.TotalRatings
}
