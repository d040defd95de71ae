package models

import (
	"database/sql/driver"
	"time"

	dbtypes "github.com/nitesh/bizrank/internal/db"
)

// RankingType selects the score a ranking is ordered by.
type RankingType string

const RankingOverall RankingType = "overall"

// RankingTypeFor returns the ranking type ordering by a single aspect.
func RankingTypeFor(a Aspect) RankingType {
	return RankingType(a)
}

// Valid reports whether t is overall or one of the aspects.
func (t RankingType) Valid() bool {
	if t == RankingOverall {
		return true
	}
	for _, a := range Aspects {
		if RankingType(a) == t {
			return true
		}
	}
	return false
}

// Score returns the value of b that t orders by.
func (t RankingType) Score(b *Business) float64 {
	if t == RankingOverall {
		return b.OverallScore
	}
	return b.AspectScore(Aspect(t))
}

const (
	FreshWindow = 24 * time.Hour
	CacheTTL    = 7 * 24 * time.Hour
)

type Freshness string

const (
	Fresh   Freshness = "fresh"
	Stale   Freshness = "stale"
	Expired Freshness = "expired"
)

// RankingCache is a stored, expiring, pre-sorted snapshot of one
// (city, category, ranking type) combination.
type RankingCache struct {
	ID          string           `db:"id" json:"id"`
	City        string           `db:"city" json:"city"`
	Category    string           `db:"category" json:"category"`
	RankingType RankingType      `db:"ranking_type" json:"ranking_type"`
	Rankings    RankedBusinesses `db:"rankings" json:"rankings"`
	LastUpdated time.Time        `db:"last_updated" json:"last_updated"`
	ExpiresAt   time.Time        `db:"expires_at" json:"expires_at"`
}

// Freshness classifies the cache at now. Rows past ExpiresAt are expired
// regardless of their age.
func (c *RankingCache) Freshness(now time.Time) Freshness {
	if now.After(c.ExpiresAt) {
		return Expired
	}
	age := now.Sub(c.LastUpdated)
	switch {
	case age < FreshWindow:
		return Fresh
	case age < CacheTTL:
		return Stale
	default:
		return Expired
	}
}

// Position returns the ranking position of a business, if present.
func (c *RankingCache) Position(businessID string) (int, bool) {
	for _, r := range c.Rankings {
		if r.BusinessID == businessID {
			return r.RankingPosition, true
		}
	}
	return 0, false
}

type RankedBusiness struct {
	BusinessID        string  `json:"business_id"`
	BusinessName      string  `json:"business_name"`
	OverallScore      float64 `json:"overall_score"`
	Score             float64 `json:"score"`
	RankingPosition   int     `json:"ranking_position"`
	PreviousPosition  *int    `json:"previous_position,omitempty"`
	PerformanceBadges []Badge `json:"performance_badges"`
}

// RankedBusinesses is stored as a jsonb array.
type RankedBusinesses []RankedBusiness

// Scan implements sql.Scanner
func (r *RankedBusinesses) Scan(src interface{}) error {
	if src == nil {
		*r = RankedBusinesses{}
		return nil
	}
	return dbtypes.ScanJSON(src, (*[]RankedBusiness)(r))
}

// Value implements driver.Valuer
func (r RankedBusinesses) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	return dbtypes.ValueJSON([]RankedBusiness(r))
}

type BadgeTier string

const (
	BadgeGold   BadgeTier = "gold"
	BadgeSilver BadgeTier = "silver"
	BadgeBronze BadgeTier = "bronze"
)

// Badge is a qualitative award backed by measured evidence.
type Badge struct {
	Aspect   Aspect    `json:"aspect"`
	Name     string    `json:"name"`
	Tier     BadgeTier `json:"tier"`
	Priority int       `json:"priority"`
	Text     string    `json:"text"`
}
