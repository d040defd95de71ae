package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/internal/analyzer"
	"github.com/nitesh/bizrank/internal/badges"
	"github.com/nitesh/bizrank/internal/queue"
	"github.com/nitesh/bizrank/internal/ranking"
	"github.com/nitesh/bizrank/internal/scoring"
	"github.com/nitesh/bizrank/pkg/models"
)

// Task kinds owned by the service.
const (
	KindAnalyzeBusiness      = "analyze_business"
	KindAnalyzeImportBatch   = "analyze_import_batch"
	KindCalculatePerformance = "calculate_performance"
)

// AllBusinesses selects every active business in a performance trigger.
const AllBusinesses = "all"

// ErrInvalidArgument marks a request the caller has to fix.
var ErrInvalidArgument = errors.New("invalid argument")

type Store interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	ListBusinessIDs(ctx context.Context) ([]string, error)
	ListAnalyzedReviews(ctx context.Context, businessID string) ([]*models.Review, error)
	ListDisplayReviews(ctx context.Context, businessID string, limit int) ([]*models.Review, error)
	GetRankingCache(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error)
	GetPerformanceMetrics(ctx context.Context, businessID string) (*models.PerformanceMetrics, error)
	CreateImportBatch(ctx context.Context, b *models.ImportBatch, reviews []*models.Review) error
}

type Analyzer interface {
	AnalyzeBusiness(ctx context.Context, businessID string, limit int) (*analyzer.BatchResult, error)
	AnalyzeImportBatch(ctx context.Context, batchID string) (*analyzer.BatchResult, error)
	ResetFailed(ctx context.Context, businessID string) (int64, error)
}

type Scorer interface {
	Calculate(ctx context.Context, businessID string) (*scoring.Result, error)
	CalculateBatch(ctx context.Context, businessIDs []string) *scoring.BatchResult
}

type Rankings interface {
	ScheduleSystemUpdate(ctx context.Context, opts ranking.Options) (*ranking.Ack, error)
	ScheduleBadgeRefresh(ctx context.Context) (*ranking.Ack, error)
	ScheduleCleanup(ctx context.Context) (*ranking.Ack, error)
	Status(ctx context.Context) (*ranking.Status, error)
}

// HotCache is the Redis copy of ranking rows.
type HotCache interface {
	Get(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error)
	Set(ctx context.Context, rc *models.RankingCache) error
}

// Options tune the analysis estimates handed back by triggers.
type Options struct {
	AnalyzeLimit int
	AnalyzeDelay time.Duration
}

type Service struct {
	repo     Store
	queue    queue.Enqueuer
	analyzer Analyzer
	scorer   Scorer
	rankings Rankings
	hot      HotCache
	opts     Options
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(repo Store, q queue.Enqueuer, an Analyzer, sc Scorer, rk Rankings, hot HotCache, opts Options, log *logrus.Entry) *Service {
	if opts.AnalyzeLimit <= 0 {
		opts.AnalyzeLimit = 50
	}
	return &Service{
		repo:     repo,
		queue:    q,
		analyzer: an,
		scorer:   sc,
		rankings: rk,
		hot:      hot,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Ack is the immediate answer of a trigger.
type Ack struct {
	Message           string `json:"message"`
	EstimatedDuration string `json:"estimated_duration"`
	Scheduled         int    `json:"scheduled,omitempty"`
	Reset             int64  `json:"reset,omitempty"`
}

type businessPayload struct {
	BusinessID string `json:"business_id"`
}

type importPayload struct {
	BatchID    string `json:"batch_id"`
	BusinessID string `json:"business_id"`
}

// RegisterHandlers installs the service task handlers.
func (s *Service) RegisterHandlers(r ranking.Registrar) {
	r.Handle(KindAnalyzeBusiness, func(ctx context.Context, t *queue.Task) error {
		var pl businessPayload
		if err := t.Decode(&pl); err != nil {
			return fmt.Errorf("decode analyze payload: %w", err)
		}
		res, err := s.analyzer.AnalyzeBusiness(ctx, pl.BusinessID, s.opts.AnalyzeLimit)
		if err != nil {
			return err
		}
		return s.afterAnalysis(ctx, pl.BusinessID, res)
	})
	r.Handle(KindAnalyzeImportBatch, func(ctx context.Context, t *queue.Task) error {
		var pl importPayload
		if err := t.Decode(&pl); err != nil {
			return fmt.Errorf("decode import payload: %w", err)
		}
		res, err := s.analyzer.AnalyzeImportBatch(ctx, pl.BatchID)
		if err != nil {
			return err
		}
		return s.afterAnalysis(ctx, pl.BusinessID, res)
	})
	r.Handle(KindCalculatePerformance, func(ctx context.Context, t *queue.Task) error {
		var pl businessPayload
		if err := t.Decode(&pl); err != nil {
			return fmt.Errorf("decode performance payload: %w", err)
		}
		if pl.BusinessID == AllBusinesses {
			ids, err := s.repo.ListBusinessIDs(ctx)
			if err != nil {
				return fmt.Errorf("list businesses: %w", err)
			}
			res := s.scorer.CalculateBatch(ctx, ids)
			s.log.WithFields(logrus.Fields{
				"calculated": res.Calculated,
				"no_scores":  res.NoScores,
				"failed":     res.Failed,
			}).Info("performance batch finished")
			return nil
		}
		_, err := s.scorer.Calculate(ctx, pl.BusinessID)
		return err
	})
}

// afterAnalysis queues a score recalculation once new analyses landed.
func (s *Service) afterAnalysis(ctx context.Context, businessID string, res *analyzer.BatchResult) error {
	if businessID == "" || res == nil || res.Analyzed == 0 {
		return nil
	}
	_, err := s.queue.Enqueue(ctx, KindCalculatePerformance, businessPayload{BusinessID: businessID}, 0)
	return err
}

// TriggerAnalysis schedules LLM analysis of a business's unanalyzed reviews.
func (s *Service) TriggerAnalysis(ctx context.Context, businessID string) (*Ack, error) {
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(ctx, KindAnalyzeBusiness, businessPayload{BusinessID: businessID}, 0); err != nil {
		return nil, fmt.Errorf("schedule analysis: %w", err)
	}
	return &Ack{
		Message:           "review analysis started",
		EstimatedDuration: s.analysisEstimate(s.opts.AnalyzeLimit),
		Scheduled:         1,
	}, nil
}

// TriggerPerformance schedules a score recalculation for one business, or for
// every active business when businessID is AllBusinesses.
func (s *Service) TriggerPerformance(ctx context.Context, businessID string) (*Ack, error) {
	estimate := 5 * time.Second
	if businessID != AllBusinesses {
		if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
			return nil, err
		}
	} else {
		ids, err := s.repo.ListBusinessIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list businesses: %w", err)
		}
		estimate = time.Duration(len(ids)) * 200 * time.Millisecond
		if estimate < 5*time.Second {
			estimate = 5 * time.Second
		}
	}
	if _, err := s.queue.Enqueue(ctx, KindCalculatePerformance, businessPayload{BusinessID: businessID}, 0); err != nil {
		return nil, fmt.Errorf("schedule performance calculation: %w", err)
	}
	return &Ack{
		Message:           "performance calculation started",
		EstimatedDuration: estimate.String(),
		Scheduled:         1,
	}, nil
}

// ResetFailedAnalysis returns failed reviews to the unanalyzed pool and
// schedules another analysis pass when any were reset.
func (s *Service) ResetFailedAnalysis(ctx context.Context, businessID string) (*Ack, error) {
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	n, err := s.analyzer.ResetFailed(ctx, businessID)
	if err != nil {
		return nil, err
	}
	ack := &Ack{Message: "no failed analyses to retry", EstimatedDuration: "0s", Reset: n}
	if n == 0 {
		return ack, nil
	}
	if _, err := s.queue.Enqueue(ctx, KindAnalyzeBusiness, businessPayload{BusinessID: businessID}, 0); err != nil {
		return nil, fmt.Errorf("schedule analysis: %w", err)
	}
	ack.Message = fmt.Sprintf("%d failed analyses reset, analysis started", n)
	ack.EstimatedDuration = s.analysisEstimate(int(n))
	ack.Scheduled = 1
	return ack, nil
}

// ImportReviews stores a batch of imported reviews and schedules their
// analysis.
func (s *Service) ImportReviews(ctx context.Context, businessID string, reviews []*models.Review) (*models.ImportBatch, *Ack, error) {
	if len(reviews) == 0 {
		return nil, nil, fmt.Errorf("empty import: %w", ErrInvalidArgument)
	}
	for i, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			return nil, nil, fmt.Errorf("review %d rating %d out of range: %w", i, r.Rating, ErrInvalidArgument)
		}
	}
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, nil, err
	}
	batch := &models.ImportBatch{BusinessID: businessID, Source: models.SourceImport, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateImportBatch(ctx, batch, reviews); err != nil {
		return nil, nil, fmt.Errorf("save import: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, KindAnalyzeImportBatch, importPayload{BatchID: batch.ID, BusinessID: businessID}, 0); err != nil {
		return nil, nil, fmt.Errorf("schedule import analysis: %w", err)
	}
	return batch, &Ack{
		Message:           fmt.Sprintf("%d reviews imported, analysis started", len(reviews)),
		EstimatedDuration: s.analysisEstimate(len(reviews)),
		Scheduled:         1,
	}, nil
}

func (s *Service) analysisEstimate(n int) string {
	if n <= 0 {
		return "0s"
	}
	// one LLM round trip per review plus the pacing delay between them
	per := s.opts.AnalyzeDelay + 2*time.Second
	return (time.Duration(n) * per).Round(time.Second).String()
}

func (s *Service) UpdateRankings(ctx context.Context, opts ranking.Options) (*ranking.Ack, error) {
	return s.rankings.ScheduleSystemUpdate(ctx, opts)
}

func (s *Service) RefreshBadges(ctx context.Context) (*ranking.Ack, error) {
	return s.rankings.ScheduleBadgeRefresh(ctx)
}

func (s *Service) CleanupRankings(ctx context.Context) (*ranking.Ack, error) {
	return s.rankings.ScheduleCleanup(ctx)
}

func (s *Service) RankingStatus(ctx context.Context) (*ranking.Status, error) {
	return s.rankings.Status(ctx)
}

// RankingView is a ranking row with its freshness at read time.
type RankingView struct {
	*models.RankingCache
	Freshness models.Freshness `json:"freshness"`
}

// Rankings reads one ranking, preferring the hot copy. Expired rows are
// reported as not found.
func (s *Service) Rankings(ctx context.Context, city, category string, t models.RankingType) (*RankingView, error) {
	if city == "" || category == "" {
		return nil, fmt.Errorf("city and category are required: %w", ErrInvalidArgument)
	}
	if t == "" {
		t = models.RankingOverall
	}
	if !t.Valid() {
		return nil, fmt.Errorf("ranking type %q: %w", t, ErrInvalidArgument)
	}
	now := s.now()

	if s.hot != nil {
		rc, err := s.hot.Get(ctx, city, category, t)
		if err != nil {
			s.log.WithError(err).Warn("hot ranking read failed")
		} else if rc != nil && rc.Freshness(now) != models.Expired {
			return &RankingView{RankingCache: rc, Freshness: rc.Freshness(now)}, nil
		}
	}

	rc, err := s.repo.GetRankingCache(ctx, city, category, t)
	if err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	if rc == nil || rc.Freshness(now) == models.Expired {
		return nil, fmt.Errorf("ranking %s/%s/%s: %w", city, category, t, models.ErrNotFound)
	}
	if s.hot != nil {
		if err := s.hot.Set(ctx, rc); err != nil {
			s.log.WithError(err).Warn("hot ranking write failed")
		}
	}
	return &RankingView{RankingCache: rc, Freshness: rc.Freshness(now)}, nil
}

// BusinessBadges computes the current badges of a business from its stored
// scores and analyzed reviews.
func (s *Service) BusinessBadges(ctx context.Context, businessID string) ([]models.Badge, error) {
	b, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListAnalyzedReviews(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list analyzed reviews: %w", err)
	}
	return badges.Generate(b, reviews), nil
}

// BusinessReviews returns the reviews a business may display, by display
// priority and capped by its plan tier. A zero limit means unlimited.
func (s *Service) BusinessReviews(ctx context.Context, businessID string) ([]*models.Review, int, error) {
	b, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, 0, err
	}
	limit := b.PlanTier.DisplayLimit()
	reviews, err := s.repo.ListDisplayReviews(ctx, businessID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, limit, nil
}

func (s *Service) Performance(ctx context.Context, businessID string) (*models.PerformanceMetrics, error) {
	return s.repo.GetPerformanceMetrics(ctx, businessID)
}
