// Package scoring turns analyzed reviews into per-business performance scores.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/pkg/models"
)

// ErrScoringInProgress is returned when another run holds the business lock.
var ErrScoringInProgress = errors.New("scoring already in progress for business")

type Store interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	ListAnalyzedReviews(ctx context.Context, businessID string) ([]*models.Review, error)
	UpdateBusinessScores(ctx context.Context, b *models.Business) error
	UpsertPerformanceMetrics(ctx context.Context, m *models.PerformanceMetrics) error
}

// Locker provides a per-key advisory lock. Acquire reports false when the key
// is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Engine struct {
	store   Store
	locker  Locker
	lockTTL time.Duration
	now     func() time.Time
	log     *logrus.Entry
}

// NewEngine creates an engine. A nil locker disables the per-business lock.
func NewEngine(store Store, locker Locker, lockTTL time.Duration, log *logrus.Entry) *Engine {
	return &Engine{store: store, locker: locker, lockTTL: lockTTL, now: time.Now, log: log}
}

// WithClock replaces the time source used for recency decay and timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Result of one scoring run. NoScores means the business had no analyzed
// reviews and was left untouched.
type Result struct {
	BusinessID string                     `json:"business_id"`
	NoScores   bool                       `json:"no_scores"`
	Business   *models.Business           `json:"business,omitempty"`
	Metrics    *models.PerformanceMetrics `json:"metrics,omitempty"`
}

// Calculate recomputes and overwrites the scores of one business.
func (e *Engine) Calculate(ctx context.Context, businessID string) (*Result, error) {
	if e.locker != nil {
		release, ok, err := e.locker.Acquire(ctx, "scoring:"+businessID, e.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire scoring lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("business %s: %w", businessID, ErrScoringInProgress)
		}
		defer release()
	}

	b, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("get business %s: %w", businessID, err)
	}
	reviews, err := e.store.ListAnalyzedReviews(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list analyzed reviews: %w", err)
	}
	if len(reviews) == 0 {
		return &Result{BusinessID: businessID, NoScores: true}, nil
	}

	now := e.now()
	s := Compute(b.Category, reviews, now)

	b.SpeedScore = s.Aspects[models.AspectSpeed]
	b.ValueScore = s.Aspects[models.AspectValue]
	b.QualityScore = s.Aspects[models.AspectQuality]
	b.ReliabilityScore = s.Aspects[models.AspectReliability]
	b.OverallScore = s.Overall
	b.LastRankingUpdate = &now
	if err := e.store.UpdateBusinessScores(ctx, b); err != nil {
		return nil, fmt.Errorf("update business scores: %w", err)
	}

	m := &models.PerformanceMetrics{
		BusinessID:           businessID,
		ConfidenceLevel:      s.Confidence,
		TotalReviewsAnalyzed: len(reviews),
		Detailed:             s.Detailed,
		CalculatedAt:         now,
	}
	if err := e.store.UpsertPerformanceMetrics(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert performance metrics: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"business_id": businessID,
		"overall":     s.Overall,
		"confidence":  s.Confidence,
		"reviews":     len(reviews),
	}).Debug("business scored")
	return &Result{BusinessID: businessID, Business: b, Metrics: m}, nil
}

// BatchResult summarizes CalculateBatch.
type BatchResult struct {
	Calculated int      `json:"calculated"`
	NoScores   int      `json:"no_scores"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// CalculateBatch scores each business in turn. A failure only affects its
// own business.
func (e *Engine) CalculateBatch(ctx context.Context, businessIDs []string) *BatchResult {
	res := &BatchResult{}
	for _, id := range businessIDs {
		r, err := e.Calculate(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			if len(res.Errors) < 10 {
				res.Errors = append(res.Errors, err.Error())
			}
			e.log.WithError(err).WithField("business_id", id).Warn("scoring failed")
		case r.NoScores:
			res.NoScores++
		default:
			res.Calculated++
		}
	}
	return res
}
