package domain

// Rating is the label derived from the final clamped score.
type Rating string

const (
	RatingExceptional Rating = "exceptional"
	RatingVeryStrong  Rating = "very strong"
	RatingStrong      Rating = "strong"
	RatingPromising   Rating = "promising"
	RatingModerate    Rating = "moderate"
	RatingWeak        Rating = "weak"
	RatingVeryWeak    Rating = "very weak"
)

// RatingForScore maps a final score onto the fixed rating table.
func RatingForScore(score float64) Rating {
	switch {
	case score >= 90:
		return RatingExceptional
	case score >= 80:
		return RatingVeryStrong
	case score >= 70:
		return RatingStrong
	case score >= 60:
		return RatingPromising
	case score >= 50:
		return RatingModerate
	case score >= 40:
		return RatingWeak
	default:
		return RatingVeryWeak
	}
}

// ComponentContribution is one weighted term of the composite score.
type ComponentContribution struct {
	Name     string  `json:"name"`
	SubScore float64 `json:"sub_score"` // raw sub-score in [0,100]
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"` // SubScore * Weight
}

// ScoreResult is the output of the score engine for one snapshot.
// Components sum (pre-multiplier) to the raw weighted total; Score is the
// raw total times AgeMultiplier, clamped into [0,100].
type ScoreResult struct {
	PairID        string                  `json:"pair_id"`
	Score         float64                 `json:"score"`
	Raw           float64                 `json:"raw"`
	AgeMultiplier float64                 `json:"age_multiplier"`
	Components    []ComponentContribution `json:"components"`
	Rating        Rating                  `json:"rating"`
}
