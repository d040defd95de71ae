package scoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitesh/bizrank/internal/logger"
	"github.com/nitesh/bizrank/pkg/models"
)

type memStore struct {
	businesses map[string]*models.Business
	reviews    map[string][]*models.Review
	metrics    map[string]*models.PerformanceMetrics
	updates    int
}

func newMemStore() *memStore {
	return &memStore{
		businesses: map[string]*models.Business{},
		reviews:    map[string][]*models.Review{},
		metrics:    map[string]*models.PerformanceMetrics{},
	}
}

func (m *memStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, fmt.Errorf("business %s: %w", id, models.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListAnalyzedReviews(ctx context.Context, businessID string) ([]*models.Review, error) {
	return m.reviews[businessID], nil
}

func (m *memStore) UpdateBusinessScores(ctx context.Context, b *models.Business) error {
	cp := *b
	m.businesses[b.ID] = &cp
	m.updates++
	return nil
}

func (m *memStore) UpsertPerformanceMetrics(ctx context.Context, pm *models.PerformanceMetrics) error {
	m.metrics[pm.BusinessID] = pm
	return nil
}

type mapLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *mapLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

func newTestEngine(s Store, l Locker) *Engine {
	return NewEngine(s, l, time.Minute, logger.Discard()).WithClock(func() time.Time { return now })
}

func TestCalculateOverwritesScores(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac", SpeedScore: 1, OverallScore: 12}
	s.reviews["b1"] = hvacReviews()

	res, err := newTestEngine(s, nil).Calculate(context.Background(), "b1")
	require.NoError(t, err)
	assert.False(t, res.NoScores)

	b := s.businesses["b1"]
	assert.Equal(t, 9.5, b.SpeedScore)
	assert.Equal(t, 92.7, b.OverallScore)
	require.NotNil(t, b.LastRankingUpdate)
	assert.Equal(t, now, *b.LastRankingUpdate)

	m := s.metrics["b1"]
	require.NotNil(t, m)
	assert.Equal(t, 4, m.TotalReviewsAnalyzed)
	// 50*0.4 + 0 verified + 25*0.75 mentioning
	assert.Equal(t, 39, m.ConfidenceLevel)
}

func TestCalculateUsesInjectedClock(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac"}
	s.reviews["b1"] = hvacReviews()
	later := now.Add(60 * day)

	e := NewEngine(s, nil, time.Minute, logger.Discard()).WithClock(func() time.Time { return later })
	_, err := e.Calculate(context.Background(), "b1")
	require.NoError(t, err)

	b := s.businesses["b1"]
	// every review is now 60-90 days old: 92.708 * 0.8
	assert.Equal(t, 74.2, b.OverallScore)
	require.NotNil(t, b.LastRankingUpdate)
	assert.Equal(t, later, *b.LastRankingUpdate)
	assert.Equal(t, later, s.metrics["b1"].CalculatedAt)
}

func TestCalculateIdempotent(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac"}
	s.reviews["b1"] = hvacReviews()
	e := newTestEngine(s, nil)

	_, err := e.Calculate(context.Background(), "b1")
	require.NoError(t, err)
	first := *s.businesses["b1"]
	_, err = e.Calculate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, first, *s.businesses["b1"])
}

func TestCalculateZeroReviewsIsNoOp(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac", OverallScore: 55}

	res, err := newTestEngine(s, nil).Calculate(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, res.NoScores)
	assert.Equal(t, 0, s.updates)
	assert.Equal(t, 55.0, s.businesses["b1"].OverallScore)
	assert.Empty(t, s.metrics)
}

func TestCalculateNotFound(t *testing.T) {
	_, err := newTestEngine(newMemStore(), nil).Calculate(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCalculateRejectsConcurrentRun(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac"}
	s.reviews["b1"] = hvacReviews()
	l := &mapLocker{held: map[string]bool{"scoring:b1": true}}

	_, err := newTestEngine(s, l).Calculate(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrScoringInProgress)
	assert.Equal(t, 0, s.updates)

	delete(l.held, "scoring:b1")
	_, err = newTestEngine(s, l).Calculate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, l.held)
}

func TestCalculateBatchIsolatesFailures(t *testing.T) {
	s := newMemStore()
	s.businesses["b1"] = &models.Business{ID: "b1", Category: "hvac"}
	s.reviews["b1"] = hvacReviews()
	s.businesses["b2"] = &models.Business{ID: "b2", Category: "plumbing"}

	res := newTestEngine(s, nil).CalculateBatch(context.Background(), []string{"b1", "missing", "b2"})
	assert.Equal(t, 1, res.Calculated)
	assert.Equal(t, 1, res.NoScores)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "missing")
}
