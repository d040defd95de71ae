// Package analyzer extracts structured signals from review text with an LLM.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	dbtypes "github.com/nitesh/bizrank/internal/db"
	"github.com/nitesh/bizrank/internal/llm"
	"github.com/nitesh/bizrank/pkg/models"
)

// MinCommentLength is the shortest comment (in characters) worth analyzing.
const MinCommentLength = 10

// maxReportedErrors caps the error strings returned from a batch.
const maxReportedErrors = 5

// ErrSkipped is returned by AnalyzeReview for comments below MinCommentLength.
var ErrSkipped = errors.New("review too short to analyze")

// Extractor is the LLM capability the analyzer needs.
type Extractor interface {
	ExtractJSON(ctx context.Context, r llm.Request, out any) error
}

// ReviewStore persists analysis results.
type ReviewStore interface {
	ListUnanalyzedReviews(ctx context.Context, businessID string, limit int) ([]*models.Review, error)
	ListUnanalyzedByImportBatch(ctx context.Context, batchID string) ([]*models.Review, error)
	SaveReviewAnalysis(ctx context.Context, r *models.Review) error
	ResetFailedAnalyses(ctx context.Context, businessID string) (int64, error)
}

type Analyzer struct {
	llm   Extractor
	store ReviewStore
	delay time.Duration
	now   func() time.Time
	log   *logrus.Entry
}

func New(extractor Extractor, store ReviewStore, delay time.Duration, log *logrus.Entry) *Analyzer {
	return &Analyzer{llm: extractor, store: store, delay: delay, now: time.Now, log: log}
}

// BatchResult summarizes one analysis batch.
type BatchResult struct {
	Analyzed int      `json:"analyzed"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// AnalyzeReview runs the five extractions for r and persists the outcome.
// Short comments are marked skipped and ErrSkipped is returned. On LLM
// failure the review is marked failed and the cause is returned.
func (a *Analyzer) AnalyzeReview(ctx context.Context, r *models.Review) error {
	if utf8.RuneCountInString(r.Comment) < MinCommentLength {
		r.AnalysisStatus = models.StatusSkipped
		r.Analysis = nil
		if err := a.store.SaveReviewAnalysis(ctx, r); err != nil {
			return fmt.Errorf("save skipped review %s: %w", r.ID, err)
		}
		return ErrSkipped
	}

	analysis, err := a.extract(ctx, r.Comment)
	if err != nil {
		zero := 0
		r.AnalysisStatus = models.StatusFailed
		r.Analysis = nil
		r.DisplayPriority = &zero
		r.Keywords = dbtypes.StringSlice{models.KeywordAnalysisFailed}
		if serr := a.store.SaveReviewAnalysis(ctx, r); serr != nil {
			return fmt.Errorf("analyze review %s: %w (marking failed: %v)", r.ID, err, serr)
		}
		return fmt.Errorf("analyze review %s: %w", r.ID, err)
	}

	priority := DisplayPriority(r, analysis, a.now())
	r.AnalysisStatus = models.StatusAnalyzed
	r.Analysis = analysis
	r.DisplayPriority = &priority
	r.Keywords = Keywords(analysis)
	if err := a.store.SaveReviewAnalysis(ctx, r); err != nil {
		return fmt.Errorf("save analysis for review %s: %w", r.ID, err)
	}
	return nil
}

// extract issues the five requests concurrently; all of them must succeed.
func (a *Analyzer) extract(ctx context.Context, text string) (*models.ReviewAnalysis, error) {
	out := &models.ReviewAnalysis{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.llm.ExtractJSON(gctx, sentimentPrompt.request(text), &out.Sentiment); err != nil {
			return fmt.Errorf("%s: %w", sentimentPrompt.name, err)
		}
		return normalizeSentiment(&out.Sentiment)
	})
	g.Go(func() error {
		if err := a.llm.ExtractJSON(gctx, speedPrompt.request(text), &out.Speed); err != nil {
			return fmt.Errorf("%s: %w", speedPrompt.name, err)
		}
		normalizeSpeed(&out.Speed)
		return nil
	})
	g.Go(func() error {
		if err := a.llm.ExtractJSON(gctx, valuePrompt.request(text), &out.ValueAspect); err != nil {
			return fmt.Errorf("%s: %w", valuePrompt.name, err)
		}
		normalizeValue(&out.ValueAspect)
		return nil
	})
	g.Go(func() error {
		if err := a.llm.ExtractJSON(gctx, qualityPrompt.request(text), &out.Quality); err != nil {
			return fmt.Errorf("%s: %w", qualityPrompt.name, err)
		}
		out.Quality.WorkmanshipScore = clampScore(out.Quality.WorkmanshipScore)
		return nil
	})
	g.Go(func() error {
		if err := a.llm.ExtractJSON(gctx, reliabilityPrompt.request(text), &out.Reliability); err != nil {
			return fmt.Errorf("%s: %w", reliabilityPrompt.name, err)
		}
		out.Reliability.ConsistencyScore = clampScore(out.Reliability.ConsistencyScore)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeBusiness analyzes up to limit unanalyzed reviews of a business.
func (a *Analyzer) AnalyzeBusiness(ctx context.Context, businessID string, limit int) (*BatchResult, error) {
	reviews, err := a.store.ListUnanalyzedReviews(ctx, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed reviews: %w", err)
	}
	return a.process(ctx, reviews, logrus.Fields{"business_id": businessID})
}

// AnalyzeImportBatch analyzes every unanalyzed review of one import batch.
func (a *Analyzer) AnalyzeImportBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	reviews, err := a.store.ListUnanalyzedByImportBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list import batch reviews: %w", err)
	}
	return a.process(ctx, reviews, logrus.Fields{"import_batch_id": batchID})
}

// ResetFailed returns failed reviews of a business to the unanalyzed state so
// the next batch picks them up again.
func (a *Analyzer) ResetFailed(ctx context.Context, businessID string) (int64, error) {
	n, err := a.store.ResetFailedAnalyses(ctx, businessID)
	if err != nil {
		return 0, fmt.Errorf("reset failed analyses: %w", err)
	}
	return n, nil
}

// process handles reviews one at a time with a fixed pause between LLM-bound
// reviews to stay under provider rate limits.
func (a *Analyzer) process(ctx context.Context, reviews []*models.Review, fields logrus.Fields) (*BatchResult, error) {
	res := &BatchResult{}
	log := a.log.WithFields(fields)
	log.WithField("reviews", len(reviews)).Info("starting review analysis batch")

	calledLLM := false
	for _, r := range reviews {
		long := utf8.RuneCountInString(r.Comment) >= MinCommentLength
		if long && calledLLM && a.delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(a.delay):
			}
		}
		if long {
			calledLLM = true
		}

		err := a.AnalyzeReview(ctx, r)
		switch {
		case err == nil:
			res.Analyzed++
		case errors.Is(err, ErrSkipped):
			res.Skipped++
		default:
			res.Failed++
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, err.Error())
			}
			log.WithError(err).WithField("review_id", r.ID).Warn("review analysis failed")
		}
	}

	log.WithFields(logrus.Fields{
		"analyzed": res.Analyzed,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
	}).Info("review analysis batch finished")
	return res, nil
}

func normalizeSentiment(s *models.SentimentAnalysis) error {
	s.Label = models.Sentiment(strings.ToLower(strings.TrimSpace(string(s.Label))))
	switch s.Label {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		return fmt.Errorf("sentiment: unexpected label %q", s.Label)
	}
	s.Confidence = math.Max(0, math.Min(1, s.Confidence))
	return nil
}

func normalizeSpeed(s *models.SpeedMention) {
	s.ResponseTime = strings.TrimSpace(s.ResponseTime)
	s.UrgencyLevel = models.Urgency(strings.ToLower(strings.TrimSpace(string(s.UrgencyLevel))))
	switch s.UrgencyLevel {
	case models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow:
	default:
		s.UrgencyLevel = ""
	}
}

func normalizeValue(v *models.ValueMention) {
	v.PricePerception = models.PricePerception(strings.ToLower(strings.TrimSpace(string(v.PricePerception))))
	switch v.PricePerception {
	case models.PriceGreatDeal, models.PriceFair, models.PriceExpensive:
	default:
		v.PricePerception = ""
	}
	v.ValueScore = clampScore(v.ValueScore)
}

func clampScore(s *float64) *float64 {
	if s == nil {
		return nil
	}
	v := math.Max(0, math.Min(10, *s))
	return &v
}
