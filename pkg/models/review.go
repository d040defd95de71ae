package models

import (
	"database/sql/driver"
	"time"

	dbtypes "github.com/nitesh/bizrank/internal/db"
)

// ReviewSource records how a review entered the system.
type ReviewSource string

const (
	SourceAPISync ReviewSource = "api_sync"
	SourceImport  ReviewSource = "import"
	SourceManual  ReviewSource = "manual"
)

// AnalysisStatus is the explicit analysis state of a review. Only unanalyzed
// reviews are picked up by analysis batches.
type AnalysisStatus string

const (
	StatusUnanalyzed AnalysisStatus = "unanalyzed"
	StatusAnalyzed   AnalysisStatus = "analyzed"
	StatusSkipped    AnalysisStatus = "skipped"
	StatusFailed     AnalysisStatus = "failed"
)

// KeywordAnalysisFailed marks a review whose LLM analysis did not complete.
const KeywordAnalysisFailed = "ai_analysis_failed"

// Review is a customer review of a business.
type Review struct {
	ID              string              `db:"id" json:"id"`
	BusinessID      string              `db:"business_id" json:"business_id"`
	ImportBatchID   *string             `db:"import_batch_id" json:"import_batch_id,omitempty"`
	Rating          int                 `db:"rating" json:"rating"`
	Comment         string              `db:"comment" json:"comment"`
	Source          ReviewSource        `db:"source" json:"source"`
	Verified        bool                `db:"verified" json:"verified"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	AnalysisStatus  AnalysisStatus      `db:"analysis_status" json:"analysis_status"`
	Analysis        *ReviewAnalysis     `db:"analysis" json:"analysis,omitempty"`
	DisplayPriority *int                `db:"display_priority" json:"display_priority,omitempty"`
	Keywords        dbtypes.StringSlice `db:"keywords" json:"keywords"`
}

// Analyzed reports whether the review carries a completed analysis.
func (r *Review) Analyzed() bool {
	return r.AnalysisStatus == StatusAnalyzed && r.Analysis != nil
}

// Mentions reports whether the review's analysis mentions the aspect.
func (r *Review) Mentions(a Aspect) bool {
	if !r.Analyzed() {
		return false
	}
	switch a {
	case AspectSpeed:
		return r.Analysis.Speed.HasMention
	case AspectValue:
		return r.Analysis.ValueAspect.HasMention
	case AspectQuality:
		return r.Analysis.Quality.HasMention
	case AspectReliability:
		return r.Analysis.Reliability.HasMention
	}
	return false
}

// MentionsAny reports whether at least one aspect is mentioned.
func (r *Review) MentionsAny() bool {
	for _, a := range Aspects {
		if r.Mentions(a) {
			return true
		}
	}
	return false
}

// ReviewAnalysis holds the five structured LLM extractions for one review.
type ReviewAnalysis struct {
	Sentiment   SentimentAnalysis  `json:"sentiment"`
	Speed       SpeedMention       `json:"speed"`
	ValueAspect ValueMention       `json:"value"`
	Quality     QualityMention     `json:"quality"`
	Reliability ReliabilityMention `json:"reliability"`
}

// Scan implements sql.Scanner for the jsonb analysis column.
func (a *ReviewAnalysis) Scan(src interface{}) error {
	return dbtypes.ScanJSON(src, a)
}

// Value implements driver.Valuer.
func (a ReviewAnalysis) Value() (driver.Value, error) {
	return dbtypes.ValueJSON(a)
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type SentimentAnalysis struct {
	Label      Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
}

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

type SpeedMention struct {
	HasMention   bool    `json:"has_mention"`
	ResponseTime string  `json:"response_time,omitempty"`
	UrgencyLevel Urgency `json:"urgency_level,omitempty"`
}

type PricePerception string

const (
	PriceGreatDeal PricePerception = "great_deal"
	PriceFair      PricePerception = "fair"
	PriceExpensive PricePerception = "expensive"
)

type ValueMention struct {
	HasMention      bool            `json:"has_mention"`
	PricePerception PricePerception `json:"price_perception,omitempty"`
	ValueScore      *float64        `json:"value_score,omitempty"`
}

type QualityMention struct {
	HasMention       bool     `json:"has_mention"`
	WorkmanshipScore *float64 `json:"workmanship_score,omitempty"`
	DetailOriented   bool     `json:"detail_oriented"`
}

type ReliabilityMention struct {
	HasMention       bool     `json:"has_mention"`
	ConsistencyScore *float64 `json:"consistency_score,omitempty"`
	FollowThrough    bool     `json:"follow_through"`
}

// ImportBatch groups reviews brought in by one import run.
type ImportBatch struct {
	ID          string       `db:"id" json:"id"`
	BusinessID  string       `db:"business_id" json:"business_id"`
	Source      ReviewSource `db:"source" json:"source"`
	ReviewCount int          `db:"review_count" json:"review_count"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
