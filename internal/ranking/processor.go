// Package ranking builds and maintains the cached (city, category, type)
// rankings. All entry points that fan out work only enqueue delayed tasks.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/internal/badges"
	"github.com/nitesh/bizrank/internal/queue"
	"github.com/nitesh/bizrank/internal/scoring"
	"github.com/nitesh/bizrank/pkg/models"
)

const (
	KindComputeRanking = "compute_ranking"
	KindRefreshBadges  = "refresh_badges"
	KindCleanup        = "cleanup_rankings"
)

// taskEstimate is the rough wall time of one ranking task, used for the
// completion estimate handed back to callers.
const taskEstimate = 5 * time.Second

type Store interface {
	ListActiveCities(ctx context.Context) ([]models.City, error)
	ListActiveCategories(ctx context.Context) ([]models.Category, error)
	ListBusinesses(ctx context.Context, city, category string) ([]*models.Business, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	ListAnalyzedReviews(ctx context.Context, businessID string) ([]*models.Review, error)
	UpdateBusinessRanks(ctx context.Context, city string, categoryRanks map[string]int) error

	// GetRankingCache returns nil, nil when no row exists.
	GetRankingCache(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error)
	GetRankingCacheByID(ctx context.Context, id string) (*models.RankingCache, error)
	UpsertRankingCache(ctx context.Context, rc *models.RankingCache) error
	ListRankingCaches(ctx context.Context) ([]*models.RankingCache, error)
	DeleteExpiredRankingCaches(ctx context.Context, now time.Time) (int64, error)

	CountBusinesses(ctx context.Context) (total, scored int, err error)
	AverageScoreByCity(ctx context.Context) (map[string]float64, error)
}

type Scorer interface {
	CalculateBatch(ctx context.Context, businessIDs []string) *scoring.BatchResult
}

// Invalidator drops hot copies of a ranking after it is rewritten.
type Invalidator interface {
	Invalidate(ctx context.Context, city, category string, t models.RankingType) error
}

// Registrar is where the processor installs its task handlers.
type Registrar interface {
	Handle(kind string, h queue.HandlerFunc)
}

// Delays are the stagger intervals between scheduled tasks.
type Delays struct {
	Stagger      time.Duration
	Aspect       time.Duration
	BadgeRefresh time.Duration
}

type Processor struct {
	store  Store
	scorer Scorer
	queue  queue.Enqueuer
	hot    Invalidator
	delays Delays
	now    func() time.Time
	log    *logrus.Entry
}

func NewProcessor(store Store, scorer Scorer, q queue.Enqueuer, hot Invalidator, delays Delays, log *logrus.Entry) *Processor {
	return &Processor{store: store, scorer: scorer, queue: q, hot: hot, delays: delays, now: time.Now, log: log}
}

// Options for a system-wide ranking update.
type Options struct {
	IncludeAspects   bool `json:"include_aspects"`
	ForceRecalculate bool `json:"force_recalculate"`
	CleanupFirst     bool `json:"cleanup_first"`
}

// Ack is the immediate answer to a scheduling request.
type Ack struct {
	Message             string    `json:"message"`
	Scheduled           int       `json:"scheduled"`
	Skipped             int       `json:"skipped"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	EstimatedDuration   string    `json:"estimated_duration"`
}

type rankingPayload struct {
	City        string             `json:"city"`
	Category    string             `json:"category"`
	RankingType models.RankingType `json:"ranking_type"`
}

type badgePayload struct {
	CacheID string `json:"cache_id"`
}

// Register installs the processor's task handlers.
func (p *Processor) Register(r Registrar) {
	r.Handle(KindComputeRanking, func(ctx context.Context, t *queue.Task) error {
		var pl rankingPayload
		if err := t.Decode(&pl); err != nil {
			return fmt.Errorf("decode ranking payload: %w", err)
		}
		_, err := p.ComputeRanking(ctx, pl.City, pl.Category, pl.RankingType)
		return err
	})
	r.Handle(KindRefreshBadges, func(ctx context.Context, t *queue.Task) error {
		var pl badgePayload
		if err := t.Decode(&pl); err != nil {
			return fmt.Errorf("decode badge payload: %w", err)
		}
		return p.RefreshBadges(ctx, pl.CacheID)
	})
	r.Handle(KindCleanup, func(ctx context.Context, t *queue.Task) error {
		_, err := p.Cleanup(ctx)
		return err
	})
}

// ScheduleSystemUpdate enqueues a ranking computation for every active
// (city, category) pair, spaced StaggerDelay apart, and returns at once.
func (p *Processor) ScheduleSystemUpdate(ctx context.Context, opts Options) (*Ack, error) {
	cities, err := p.store.ListActiveCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	categories, err := p.store.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	now := p.now()
	ack := &Ack{}
	var offset, last time.Duration
	if opts.CleanupFirst {
		if _, err := p.queue.Enqueue(ctx, KindCleanup, nil, 0); err != nil {
			return nil, err
		}
		offset = p.delays.Stagger
	}

	index := 0
	for _, city := range cities {
		for _, cat := range categories {
			if !opts.ForceRecalculate {
				existing, err := p.store.GetRankingCache(ctx, city.Slug, cat.Slug, models.RankingOverall)
				if err != nil {
					return nil, fmt.Errorf("read cache %s/%s: %w", city.Slug, cat.Slug, err)
				}
				if existing != nil && existing.Freshness(now) == models.Fresh {
					ack.Skipped++
					continue
				}
			}

			delay := offset + time.Duration(index)*p.delays.Stagger
			if err := p.enqueueRanking(ctx, city.Slug, cat.Slug, models.RankingOverall, delay); err != nil {
				return nil, err
			}
			ack.Scheduled++
			last = delay

			if opts.IncludeAspects {
				for i, a := range models.Aspects {
					d := delay + time.Duration(i+1)*p.delays.Aspect
					if err := p.enqueueRanking(ctx, city.Slug, cat.Slug, models.RankingTypeFor(a), d); err != nil {
						return nil, err
					}
					ack.Scheduled++
					last = d
				}
			}
			index++
		}
	}

	p.finishAck(ack, now, last, "ranking update")
	p.log.WithFields(logrus.Fields{
		"scheduled":       ack.Scheduled,
		"skipped":         ack.Skipped,
		"include_aspects": opts.IncludeAspects,
		"force":           opts.ForceRecalculate,
		"cleanup_first":   opts.CleanupFirst,
	}).Info("system ranking update scheduled")
	return ack, nil
}

func (p *Processor) enqueueRanking(ctx context.Context, city, category string, t models.RankingType, delay time.Duration) error {
	_, err := p.queue.Enqueue(ctx, KindComputeRanking, rankingPayload{City: city, Category: category, RankingType: t}, delay)
	if err != nil {
		return fmt.Errorf("schedule %s ranking %s/%s: %w", t, city, category, err)
	}
	return nil
}

// ScheduleBadgeRefresh enqueues a badge refresh for every cache row.
func (p *Processor) ScheduleBadgeRefresh(ctx context.Context) (*Ack, error) {
	caches, err := p.store.ListRankingCaches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ranking caches: %w", err)
	}
	ack := &Ack{}
	var last time.Duration
	for i, rc := range caches {
		last = time.Duration(i) * p.delays.BadgeRefresh
		if _, err := p.queue.Enqueue(ctx, KindRefreshBadges, badgePayload{CacheID: rc.ID}, last); err != nil {
			return nil, fmt.Errorf("schedule badge refresh: %w", err)
		}
		ack.Scheduled++
	}
	p.finishAck(ack, p.now(), last, "badge refresh")
	p.log.WithField("scheduled", ack.Scheduled).Info("badge refresh scheduled")
	return ack, nil
}

// ScheduleCleanup enqueues an immediate expired-cache cleanup.
func (p *Processor) ScheduleCleanup(ctx context.Context) (*Ack, error) {
	if _, err := p.queue.Enqueue(ctx, KindCleanup, nil, 0); err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}
	ack := &Ack{Scheduled: 1}
	p.finishAck(ack, p.now(), 0, "cleanup")
	return ack, nil
}

func (p *Processor) finishAck(ack *Ack, now time.Time, last time.Duration, what string) {
	total := time.Duration(0)
	if ack.Scheduled > 0 {
		total = last + taskEstimate
	}
	ack.EstimatedCompletion = now.Add(total)
	ack.EstimatedDuration = total.Round(time.Second).String()
	ack.Message = fmt.Sprintf("%s scheduled: %d tasks", what, ack.Scheduled)
}

// RankingResult describes one computed ranking.
type RankingResult struct {
	Cache   *models.RankingCache `json:"cache"`
	Scoring *scoring.BatchResult `json:"scoring,omitempty"`
}

// ComputeRanking builds and stores the ranking of one (city, category, type).
// Overall rankings rescore every business first.
func (p *Processor) ComputeRanking(ctx context.Context, city, category string, t models.RankingType) (*RankingResult, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown ranking type %q", t)
	}
	log := p.log.WithFields(logrus.Fields{"city": city, "category": category, "ranking_type": t})

	businesses, err := p.store.ListBusinesses(ctx, city, category)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}

	res := &RankingResult{}
	if t == models.RankingOverall && len(businesses) > 0 {
		ids := make([]string, len(businesses))
		for i, b := range businesses {
			ids[i] = b.ID
		}
		res.Scoring = p.scorer.CalculateBatch(ctx, ids)
		if businesses, err = p.store.ListBusinesses(ctx, city, category); err != nil {
			return nil, fmt.Errorf("reload businesses: %w", err)
		}
	}

	previous, err := p.store.GetRankingCache(ctx, city, category, t)
	if err != nil {
		return nil, fmt.Errorf("read previous ranking: %w", err)
	}

	ranked := SortForRanking(businesses, t)
	now := p.now()
	rc := &models.RankingCache{
		ID:          uuid.NewString(),
		City:        city,
		Category:    category,
		RankingType: t,
		Rankings:    make(models.RankedBusinesses, 0, len(ranked)),
		LastUpdated: now,
		ExpiresAt:   now.Add(models.CacheTTL),
	}
	if previous != nil {
		rc.ID = previous.ID
	}

	categoryRanks := make(map[string]int, len(ranked))
	for i, b := range ranked {
		reviews, err := p.store.ListAnalyzedReviews(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("list reviews for %s: %w", b.ID, err)
		}
		entry := models.RankedBusiness{
			BusinessID:        b.ID,
			BusinessName:      b.Name,
			OverallScore:      b.OverallScore,
			Score:             t.Score(b),
			RankingPosition:   i + 1,
			PerformanceBadges: badges.Generate(b, reviews),
		}
		if previous != nil {
			if pos, ok := previous.Position(b.ID); ok {
				entry.PreviousPosition = &pos
			}
		}
		rc.Rankings = append(rc.Rankings, entry)
		categoryRanks[b.ID] = i + 1
	}

	if err := p.store.UpsertRankingCache(ctx, rc); err != nil {
		return nil, fmt.Errorf("store ranking: %w", err)
	}
	if t == models.RankingOverall {
		if err := p.store.UpdateBusinessRanks(ctx, city, categoryRanks); err != nil {
			return nil, fmt.Errorf("update business ranks: %w", err)
		}
	}
	p.invalidate(ctx, city, category, t)

	res.Cache = rc
	log.WithField("ranked", len(rc.Rankings)).Info("ranking computed")
	return res, nil
}

// RefreshBadges regenerates the badges of every business in one cache row.
// Positions and timestamps are left as they are.
func (p *Processor) RefreshBadges(ctx context.Context, cacheID string) error {
	rc, err := p.store.GetRankingCacheByID(ctx, cacheID)
	if err != nil {
		return fmt.Errorf("get ranking cache %s: %w", cacheID, err)
	}
	for i := range rc.Rankings {
		entry := &rc.Rankings[i]
		b, err := p.store.GetBusiness(ctx, entry.BusinessID)
		if err != nil {
			p.log.WithError(err).WithField("business_id", entry.BusinessID).Warn("badge refresh: business unavailable")
			continue
		}
		reviews, err := p.store.ListAnalyzedReviews(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("list reviews for %s: %w", b.ID, err)
		}
		entry.PerformanceBadges = badges.Generate(b, reviews)
	}
	if err := p.store.UpsertRankingCache(ctx, rc); err != nil {
		return fmt.Errorf("store refreshed badges: %w", err)
	}
	p.invalidate(ctx, rc.City, rc.Category, rc.RankingType)
	return nil
}

// Cleanup deletes cache rows whose ExpiresAt has passed.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	n, err := p.store.DeleteExpiredRankingCaches(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired caches: %w", err)
	}
	p.log.WithField("deleted", n).Info("expired ranking caches cleaned up")
	return n, nil
}

func (p *Processor) invalidate(ctx context.Context, city, category string, t models.RankingType) {
	if p.hot == nil {
		return
	}
	if err := p.hot.Invalidate(ctx, city, category, t); err != nil {
		p.log.WithError(err).Warn("invalidate hot ranking copy")
	}
}

// SortForRanking returns the scored businesses ordered for ranking type t:
// score descending, then name, then ID.
func SortForRanking(businesses []*models.Business, t models.RankingType) []*models.Business {
	out := make([]*models.Business, 0, len(businesses))
	for _, b := range businesses {
		if b.Scored() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := t.Score(out[i]), t.Score(out[j])
		if si != sj {
			return si > sj
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
