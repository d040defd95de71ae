package badges

import "github.com/nitesh/bizrank/pkg/models"

// Criterion is one row of the badge table. Zero-valued conditions are ignored.
type Criterion struct {
	Priority    int
	Tier        models.BadgeTier
	Name        string
	MinScore    float64
	MinMentions int

	RequireResponseTime  bool
	MinHighUrgencyRate   float64
	MaxExpensiveRate     *float64
	MinDetailRate        float64
	MinFollowThroughRate float64

	// Template placeholders: {score} {mentions} {response_time} {great_deal_pct}
	// {workmanship} {detail_pct} {follow_through_pct} {urgent_pct}
	Template string
}

func rate(v float64) *float64 { return &v }

// criteria is ordered by priority within each aspect and read-only after init.
var criteria = map[models.Aspect][]Criterion{
	models.AspectSpeed: {
		{Priority: 1, Tier: models.BadgeGold, Name: "Lightning Fast", MinScore: 9, MinMentions: 5,
			RequireResponseTime: true, Template: "Lightning Fast • {response_time} Response"},
		{Priority: 2, Tier: models.BadgeSilver, Name: "Quick Response", MinScore: 8, MinMentions: 3,
			MinHighUrgencyRate: 0.3, Template: "Quick Response • {urgent_pct}% urgent jobs handled"},
		{Priority: 3, Tier: models.BadgeBronze, Name: "Prompt Service", MinScore: 7, MinMentions: 2,
			Template: "Prompt Service • {score}/10 Speed"},
	},
	models.AspectValue: {
		{Priority: 1, Tier: models.BadgeGold, Name: "Exceptional Value", MinScore: 9, MinMentions: 5,
			MaxExpensiveRate: rate(0.05), Template: "Exceptional Value • {great_deal_pct}% call it a great deal"},
		{Priority: 2, Tier: models.BadgeSilver, Name: "Fair Pricing", MinScore: 8, MinMentions: 3,
			MaxExpensiveRate: rate(0.15), Template: "Fair Pricing • {mentions} reviews on price"},
		{Priority: 3, Tier: models.BadgeBronze, Name: "Good Value", MinScore: 7, MinMentions: 2,
			MaxExpensiveRate: rate(0.3), Template: "Good Value • {score}/10 Value"},
	},
	models.AspectQuality: {
		{Priority: 1, Tier: models.BadgeGold, Name: "Master Craftsman", MinScore: 9, MinMentions: 5,
			MinDetailRate: 0.5, Template: "Master Craftsman • {workmanship}/10 Workmanship"},
		{Priority: 2, Tier: models.BadgeSilver, Name: "Quality Work", MinScore: 8, MinMentions: 3,
			Template: "Quality Work • {detail_pct}% Detail-Oriented"},
		{Priority: 3, Tier: models.BadgeBronze, Name: "Solid Workmanship", MinScore: 7, MinMentions: 2,
			Template: "Solid Workmanship • {score}/10 Quality"},
	},
	models.AspectReliability: {
		{Priority: 1, Tier: models.BadgeGold, Name: "Rock Solid", MinScore: 9, MinMentions: 5,
			MinFollowThroughRate: 0.8, Template: "Rock Solid • {follow_through_pct}% Follow-Through"},
		{Priority: 2, Tier: models.BadgeSilver, Name: "Dependable", MinScore: 8, MinMentions: 3,
			Template: "Dependable • {mentions} customers vouch"},
		{Priority: 3, Tier: models.BadgeBronze, Name: "Consistent", MinScore: 7, MinMentions: 2,
			Template: "Consistent • {score}/10 Reliability"},
	},
}

// Criteria returns a copy of the ordered criteria of an aspect.
func Criteria(a models.Aspect) []Criterion {
	return append([]Criterion(nil), criteria[a]...)
}

func (c Criterion) satisfied(score float64, ev AspectEvidence) bool {
	if score < c.MinScore || ev.Mentions < c.MinMentions {
		return false
	}
	if c.RequireResponseTime && ev.ResponseTime == "" {
		return false
	}
	if ev.HighUrgencyRate < c.MinHighUrgencyRate {
		return false
	}
	if c.MaxExpensiveRate != nil && ev.ExpensiveRate >= *c.MaxExpensiveRate {
		return false
	}
	if ev.DetailRate < c.MinDetailRate || ev.FollowThroughRate < c.MinFollowThroughRate {
		return false
	}
	return true
}
