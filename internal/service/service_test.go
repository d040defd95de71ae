package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitesh/bizrank/internal/analyzer"
	"github.com/nitesh/bizrank/internal/logger"
	"github.com/nitesh/bizrank/internal/queue"
	"github.com/nitesh/bizrank/internal/ranking"
	"github.com/nitesh/bizrank/internal/scoring"
	"github.com/nitesh/bizrank/pkg/models"
)

var testNow = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	businesses map[string]*models.Business
	reviews    map[string][]*models.Review
	caches     map[string]*models.RankingCache
	metrics    map[string]*models.PerformanceMetrics
	imported   []*models.Review
	limitSeen  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses: map[string]*models.Business{},
		reviews:    map[string][]*models.Review{},
		caches:     map[string]*models.RankingCache{},
		metrics:    map[string]*models.PerformanceMetrics{},
	}
}

func key(city, category string, t models.RankingType) string {
	return city + "/" + category + "/" + string(t)
}

func (f *fakeStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	b, ok := f.businesses[id]
	if !ok {
		return nil, fmt.Errorf("business %s: %w", id, models.ErrNotFound)
	}
	return b, nil
}

func (f *fakeStore) ListBusinessIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	for id := range f.businesses {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) ListAnalyzedReviews(ctx context.Context, id string) ([]*models.Review, error) {
	return f.reviews[id], nil
}

func (f *fakeStore) ListDisplayReviews(ctx context.Context, id string, limit int) ([]*models.Review, error) {
	f.limitSeen = limit
	out := f.reviews[id]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetRankingCache(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error) {
	return f.caches[key(city, category, t)], nil
}

func (f *fakeStore) GetPerformanceMetrics(ctx context.Context, id string) (*models.PerformanceMetrics, error) {
	m, ok := f.metrics[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) CreateImportBatch(ctx context.Context, b *models.ImportBatch, reviews []*models.Review) error {
	b.ID = "batch-1"
	b.ReviewCount = len(reviews)
	f.imported = append(f.imported, reviews...)
	return nil
}

type enqueued struct {
	kind    string
	payload []byte
	delay   time.Duration
}

type recordingQueue struct{ tasks []enqueued }

func (q *recordingQueue) Enqueue(ctx context.Context, kind string, payload any, delay time.Duration) (*queue.Task, error) {
	b, _ := json.Marshal(payload)
	q.tasks = append(q.tasks, enqueued{kind: kind, payload: b, delay: delay})
	return &queue.Task{ID: fmt.Sprint(len(q.tasks)), Kind: kind, Payload: b}, nil
}

type fakeAnalyzer struct {
	result   *analyzer.BatchResult
	reset    int64
	analyzed []string
	batches  []string
}

func (a *fakeAnalyzer) AnalyzeBusiness(ctx context.Context, id string, limit int) (*analyzer.BatchResult, error) {
	a.analyzed = append(a.analyzed, id)
	return a.result, nil
}

func (a *fakeAnalyzer) AnalyzeImportBatch(ctx context.Context, batchID string) (*analyzer.BatchResult, error) {
	a.batches = append(a.batches, batchID)
	return a.result, nil
}

func (a *fakeAnalyzer) ResetFailed(ctx context.Context, id string) (int64, error) {
	return a.reset, nil
}

type fakeScorer struct {
	single []string
	batch  []string
}

func (s *fakeScorer) Calculate(ctx context.Context, id string) (*scoring.Result, error) {
	s.single = append(s.single, id)
	return &scoring.Result{BusinessID: id}, nil
}

func (s *fakeScorer) CalculateBatch(ctx context.Context, ids []string) *scoring.BatchResult {
	s.batch = append(s.batch, ids...)
	return &scoring.BatchResult{Calculated: len(ids)}
}

type fakeHot struct {
	rows map[string]*models.RankingCache
	sets int
}

func (h *fakeHot) Get(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error) {
	return h.rows[key(city, category, t)], nil
}

func (h *fakeHot) Set(ctx context.Context, rc *models.RankingCache) error {
	h.sets++
	h.rows[key(rc.City, rc.Category, rc.RankingType)] = rc
	return nil
}

type handlerMap map[string]queue.HandlerFunc

func (h handlerMap) Handle(kind string, f queue.HandlerFunc) { h[kind] = f }

type fixture struct {
	svc      *Service
	store    *fakeStore
	queue    *recordingQueue
	analyzer *fakeAnalyzer
	scorer   *fakeScorer
	hot      *fakeHot
	handlers handlerMap
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		queue:    &recordingQueue{},
		analyzer: &fakeAnalyzer{result: &analyzer.BatchResult{}},
		scorer:   &fakeScorer{},
		hot:      &fakeHot{rows: map[string]*models.RankingCache{}},
		handlers: handlerMap{},
	}
	f.store.businesses["b1"] = &models.Business{ID: "b1", Name: "Cool Air", City: "austin", Category: "hvac", PlanTier: models.TierFree, Active: true}
	f.svc = NewService(f.store, f.queue, f.analyzer, f.scorer, nil, f.hot,
		Options{AnalyzeLimit: 10, AnalyzeDelay: time.Second}, logger.Discard())
	f.svc.now = func() time.Time { return testNow }
	f.svc.RegisterHandlers(f.handlers)
	return f
}

func task(t *testing.T, kind string, payload any) *queue.Task {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Task{ID: "t", Kind: kind, Payload: b}
}

func TestTriggerAnalysisUnknownBusiness(t *testing.T) {
	f := newFixture()
	_, err := f.svc.TriggerAnalysis(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, f.queue.tasks)
}

func TestTriggerAnalysisEnqueues(t *testing.T) {
	f := newFixture()
	ack, err := f.svc.TriggerAnalysis(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, KindAnalyzeBusiness, f.queue.tasks[0].kind)
	assert.JSONEq(t, `{"business_id":"b1"}`, string(f.queue.tasks[0].payload))
	assert.Equal(t, "30s", ack.EstimatedDuration)
}

func TestAnalysisChainsPerformanceWhenReviewsAnalyzed(t *testing.T) {
	f := newFixture()
	f.analyzer.result = &analyzer.BatchResult{Analyzed: 3}
	require.NoError(t, f.handlers[KindAnalyzeBusiness](context.Background(), task(t, KindAnalyzeBusiness, businessPayload{BusinessID: "b1"})))
	assert.Equal(t, []string{"b1"}, f.analyzer.analyzed)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, KindCalculatePerformance, f.queue.tasks[0].kind)
}

func TestAnalysisWithNothingNewDoesNotRescore(t *testing.T) {
	f := newFixture()
	f.analyzer.result = &analyzer.BatchResult{Skipped: 2}
	require.NoError(t, f.handlers[KindAnalyzeBusiness](context.Background(), task(t, KindAnalyzeBusiness, businessPayload{BusinessID: "b1"})))
	assert.Empty(t, f.queue.tasks)
}

func TestPerformanceHandler(t *testing.T) {
	f := newFixture()
	f.store.businesses["b2"] = &models.Business{ID: "b2"}
	h := f.handlers[KindCalculatePerformance]

	require.NoError(t, h(context.Background(), task(t, KindCalculatePerformance, businessPayload{BusinessID: "b1"})))
	assert.Equal(t, []string{"b1"}, f.scorer.single)

	require.NoError(t, h(context.Background(), task(t, KindCalculatePerformance, businessPayload{BusinessID: AllBusinesses})))
	assert.ElementsMatch(t, []string{"b1", "b2"}, f.scorer.batch)
}

func TestImportBatchHandler(t *testing.T) {
	f := newFixture()
	h := f.handlers[KindAnalyzeImportBatch]
	require.NoError(t, h(context.Background(), task(t, KindAnalyzeImportBatch, importPayload{BatchID: "batch-9", BusinessID: "b1"})))
	assert.Equal(t, []string{"batch-9"}, f.analyzer.batches)
	assert.Empty(t, f.queue.tasks)

	f.analyzer.result = &analyzer.BatchResult{Analyzed: 4}
	require.NoError(t, h(context.Background(), task(t, KindAnalyzeImportBatch, importPayload{BatchID: "batch-9", BusinessID: "b1"})))
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, KindCalculatePerformance, f.queue.tasks[0].kind)
	assert.JSONEq(t, `{"business_id":"b1"}`, string(f.queue.tasks[0].payload))
}

func TestResetFailedAnalysis(t *testing.T) {
	f := newFixture()
	ack, err := f.svc.ResetFailedAnalysis(context.Background(), "b1")
	require.NoError(t, err)
	assert.Zero(t, ack.Reset)
	assert.Empty(t, f.queue.tasks)

	f.analyzer.reset = 3
	ack, err = f.svc.ResetFailedAnalysis(context.Background(), "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, ack.Reset)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, KindAnalyzeBusiness, f.queue.tasks[0].kind)
}

func TestImportReviews(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.ImportReviews(context.Background(), "b1", []*models.Review{{Rating: 6}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	batch, ack, err := f.svc.ImportReviews(context.Background(), "b1", []*models.Review{
		{Rating: 5, Comment: "Fixed our furnace the same afternoon"},
		{Rating: 4, Comment: "Fair price, tidy work"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch.ID)
	assert.Equal(t, 2, batch.ReviewCount)
	assert.Len(t, f.store.imported, 2)
	require.Len(t, f.queue.tasks, 1)
	assert.JSONEq(t, `{"batch_id":"batch-1","business_id":"b1"}`, string(f.queue.tasks[0].payload))
	assert.Equal(t, "6s", ack.EstimatedDuration)
}

func cacheAt(updated time.Time) *models.RankingCache {
	return &models.RankingCache{
		ID: "c1", City: "austin", Category: "hvac", RankingType: models.RankingOverall,
		Rankings:    models.RankedBusinesses{{BusinessID: "b1", BusinessName: "Cool Air", RankingPosition: 1}},
		LastUpdated: updated,
		ExpiresAt:   updated.Add(models.CacheTTL),
	}
}

func TestRankingsReadThrough(t *testing.T) {
	f := newFixture()
	f.store.caches[key("austin", "hvac", models.RankingOverall)] = cacheAt(testNow.Add(-2 * time.Hour))

	view, err := f.svc.Rankings(context.Background(), "austin", "hvac", "")
	require.NoError(t, err)
	assert.Equal(t, models.Fresh, view.Freshness)
	assert.Equal(t, 1, f.hot.sets)

	delete(f.store.caches, key("austin", "hvac", models.RankingOverall))
	view, err = f.svc.Rankings(context.Background(), "austin", "hvac", models.RankingOverall)
	require.NoError(t, err)
	assert.Equal(t, "c1", view.ID)
	assert.Equal(t, 1, f.hot.sets)
}

func TestRankingsExpiredIsNotFound(t *testing.T) {
	f := newFixture()
	f.store.caches[key("austin", "hvac", models.RankingOverall)] = cacheAt(testNow.Add(-8 * 24 * time.Hour))
	_, err := f.svc.Rankings(context.Background(), "austin", "hvac", models.RankingOverall)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Rankings(context.Background(), "austin", "plumbing", models.RankingOverall)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRankingsValidatesInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Rankings(context.Background(), "austin", "hvac", "fastest")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Rankings(context.Background(), "", "hvac", models.RankingOverall)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBusinessReviewsTierLimit(t *testing.T) {
	f := newFixture()
	for i := 0; i < 8; i++ {
		f.store.reviews["b1"] = append(f.store.reviews["b1"], &models.Review{ID: fmt.Sprint(i), Rating: 5})
	}
	out, limit, err := f.svc.BusinessReviews(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
	assert.Len(t, out, 5)

	f.store.businesses["b1"].PlanTier = models.TierPower
	out, limit, err = f.svc.BusinessReviews(context.Background(), "b1")
	require.NoError(t, err)
	assert.Zero(t, limit)
	assert.Len(t, out, 8)
}

func TestBusinessBadges(t *testing.T) {
	f := newFixture()
	b := f.store.businesses["b1"]
	b.QualityScore = 9.4
	for i := 0; i < 5; i++ {
		f.store.reviews["b1"] = append(f.store.reviews["b1"], &models.Review{
			ID: fmt.Sprint(i), Rating: 5, AnalysisStatus: models.StatusAnalyzed,
			Analysis: &models.ReviewAnalysis{
				Sentiment: models.SentimentAnalysis{Label: models.SentimentPositive, Confidence: 0.9},
				Quality:   models.QualityMention{HasMention: true, DetailOriented: true},
			},
		})
	}
	got, err := f.svc.BusinessBadges(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.AspectQuality, got[0].Aspect)
	assert.Equal(t, "Master Craftsman", got[0].Name)

	_, err = f.svc.BusinessBadges(context.Background(), "zzz")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

var _ Rankings = (*ranking.Processor)(nil)
