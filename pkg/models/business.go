package models

import (
	"database/sql/driver"
	"time"

	dbtypes "github.com/nitesh/bizrank/internal/db"
)

// Aspect is one of the four scored dimensions of business performance.
type Aspect string

const (
	AspectSpeed       Aspect = "speed"
	AspectValue       Aspect = "value"
	AspectQuality     Aspect = "quality"
	AspectReliability Aspect = "reliability"
)

// Aspects lists the aspects in their canonical order.
var Aspects = []Aspect{AspectSpeed, AspectValue, AspectQuality, AspectReliability}

// PlanTier is a business subscription plan. It gates review display volume only.
type PlanTier string

const (
	TierFree    PlanTier = "free"
	TierStarter PlanTier = "starter"
	TierPro     PlanTier = "pro"
	TierPower   PlanTier = "power"
)

// PlanTiers lists the tiers from lowest to highest.
var PlanTiers = []PlanTier{TierFree, TierStarter, TierPro, TierPower}

// DisplayLimit returns how many reviews a tier may display; 0 means unlimited.
func (t PlanTier) DisplayLimit() int {
	switch t {
	case TierStarter:
		return 25
	case TierPro:
		return 100
	case TierPower:
		return 0
	default:
		return 5
	}
}

// Business is a listed local business with its derived scores.
type Business struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	City              string     `db:"city" json:"city"`
	Category          string     `db:"category" json:"category"`
	PlanTier          PlanTier   `db:"plan_tier" json:"plan_tier"`
	Active            bool       `db:"active" json:"active"`
	SpeedScore        float64    `db:"speed_score" json:"speed_score"`
	ValueScore        float64    `db:"value_score" json:"value_score"`
	QualityScore      float64    `db:"quality_score" json:"quality_score"`
	ReliabilityScore  float64    `db:"reliability_score" json:"reliability_score"`
	OverallScore      float64    `db:"overall_score" json:"overall_score"`
	CityRank          *int       `db:"city_rank" json:"city_rank,omitempty"`
	CategoryRank      *int       `db:"category_rank" json:"category_rank,omitempty"`
	LastRankingUpdate *time.Time `db:"last_ranking_update" json:"last_ranking_update,omitempty"`

	// ReviewCount is filled by queries that join reviews (not persisted).
	ReviewCount int `db:"review_count" json:"review_count,omitempty"`
}

// AspectScore returns the business's score for one aspect.
func (b *Business) AspectScore(a Aspect) float64 {
	switch a {
	case AspectSpeed:
		return b.SpeedScore
	case AspectValue:
		return b.ValueScore
	case AspectQuality:
		return b.QualityScore
	case AspectReliability:
		return b.ReliabilityScore
	}
	return 0
}

// Scored reports whether the scoring engine has run for the business.
func (b *Business) Scored() bool {
	return b.LastRankingUpdate != nil
}

// City and Category are the active dimensions rankings are built over.
type City struct {
	Slug   string `db:"slug" json:"slug"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

type Category struct {
	Slug   string `db:"slug" json:"slug"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// PerformanceMetrics is the per-business record derived by one scoring pass.
type PerformanceMetrics struct {
	BusinessID           string          `db:"business_id" json:"business_id"`
	ConfidenceLevel      int             `db:"confidence_level" json:"confidence_level"`
	TotalReviewsAnalyzed int             `db:"total_reviews_analyzed" json:"total_reviews_analyzed"`
	Detailed             DetailedMetrics `db:"detailed" json:"detailed"`
	CalculatedAt         time.Time       `db:"calculated_at" json:"calculated_at"`
}

type DetailedMetrics struct {
	AverageRating        float64 `json:"average_rating"`
	RecencyFactor        float64 `json:"recency_factor"`
	SpeedMentions        int     `json:"speed_mentions"`
	ValueMentions        int     `json:"value_mentions"`
	QualityMentions      int     `json:"quality_mentions"`
	ReliabilityMentions  int     `json:"reliability_mentions"`
	TransparencyScore    float64 `json:"transparency_score"`
	CommunicationScore   float64 `json:"communication_score"`
	ExpensiveMentionRate float64 `json:"expensive_mention_rate"`
	DetailOrientedRate   float64 `json:"detail_oriented_rate"`
	FollowThroughRate    float64 `json:"follow_through_rate"`
	HighUrgencyRate      float64 `json:"high_urgency_rate"`
}

// Scan implements sql.Scanner for the jsonb detailed column.
func (d *DetailedMetrics) Scan(src interface{}) error {
	return dbtypes.ScanJSON(src, d)
}

// Value implements driver.Valuer.
func (d DetailedMetrics) Value() (driver.Value, error) {
	return dbtypes.ValueJSON(d)
}
