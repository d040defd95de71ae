package analyzer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitesh/bizrank/internal/llm"
	"github.com/nitesh/bizrank/internal/logger"
	"github.com/nitesh/bizrank/pkg/models"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

// fakeLLM answers each of the five prompts from a canned table.
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	answers map[string]string
	failOn  string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{answers: map[string]string{
		"overall sentiment": `{"sentiment":"Positive","confidence":0.93}`,
		"how fast":          `{"has_mention":true,"response_time":"20 minutes","urgency_level":"high"}`,
		"price or value":    `{"has_mention":false,"price_perception":"","value_score":null}`,
		"quality of the":    `{"has_mention":true,"workmanship_score":12,"detail_oriented":true}`,
		"reliability":       `{"has_mention":false,"consistency_score":null,"follow_through":false}`,
	}}
}

func (f *fakeLLM) ExtractJSON(ctx context.Context, r llm.Request, out any) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for key, answer := range f.answers {
		if strings.Contains(r.Prompt, key) {
			if f.failOn != "" && key == f.failOn {
				return errors.New("provider timeout")
			}
			return llm.DecodeObject(answer, out)
		}
	}
	return errors.New("unexpected prompt")
}

type fakeStore struct {
	saved      map[string]models.Review
	unanalyzed []*models.Review
	resetCount int64
}

func newFakeStore(reviews ...*models.Review) *fakeStore {
	return &fakeStore{saved: map[string]models.Review{}, unanalyzed: reviews}
}

func (s *fakeStore) ListUnanalyzedReviews(ctx context.Context, businessID string, limit int) ([]*models.Review, error) {
	var out []*models.Review
	for _, r := range s.unanalyzed {
		if r.BusinessID == businessID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListUnanalyzedByImportBatch(ctx context.Context, batchID string) ([]*models.Review, error) {
	var out []*models.Review
	for _, r := range s.unanalyzed {
		if r.ImportBatchID != nil && *r.ImportBatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveReviewAnalysis(ctx context.Context, r *models.Review) error {
	s.saved[r.ID] = *r
	return nil
}

func (s *fakeStore) ResetFailedAnalyses(ctx context.Context, businessID string) (int64, error) {
	return s.resetCount, nil
}

func newTestAnalyzer(l Extractor, s ReviewStore) *Analyzer {
	a := New(l, s, 0, logger.Discard())
	a.now = func() time.Time { return testNow }
	return a
}

func review(id, comment string) *models.Review {
	return &models.Review{
		ID:             id,
		BusinessID:     "biz-1",
		Rating:         5,
		Comment:        comment,
		Source:         models.SourceAPISync,
		Verified:       true,
		CreatedAt:      testNow.Add(-10 * 24 * time.Hour),
		AnalysisStatus: models.StatusUnanalyzed,
	}
}

func TestShortReviewSkipped(t *testing.T) {
	l := newFakeLLM()
	s := newFakeStore()
	a := newTestAnalyzer(l, s)

	err := a.AnalyzeReview(context.Background(), review("r1", "Great job")) // 9 characters
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, 0, l.calls)
	assert.Equal(t, models.StatusSkipped, s.saved["r1"].AnalysisStatus)
	assert.Nil(t, s.saved["r1"].Analysis)
}

func TestTenCharacterReviewAnalyzed(t *testing.T) {
	l := newFakeLLM()
	s := newFakeStore()
	a := newTestAnalyzer(l, s)

	require.NoError(t, a.AnalyzeReview(context.Background(), review("r1", "Great job!")))
	assert.Equal(t, 5, l.calls)

	got := s.saved["r1"]
	assert.Equal(t, models.StatusAnalyzed, got.AnalysisStatus)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, models.SentimentPositive, got.Analysis.Sentiment.Label)
	assert.Equal(t, models.UrgencyHigh, got.Analysis.Speed.UrgencyLevel)
	require.NotNil(t, got.Analysis.Quality.WorkmanshipScore)
	assert.Equal(t, 10.0, *got.Analysis.Quality.WorkmanshipScore)

	// rating 50 + positive 15 + two mentions 20 + verified 20 + recent 20
	require.NotNil(t, got.DisplayPriority)
	assert.Equal(t, 125, *got.DisplayPriority)
	assert.Equal(t, []string{"sentiment_positive", "speed", "high_urgency", "quality", "detail_oriented"}, []string(got.Keywords))
}

func TestFailedExtractionMarksReview(t *testing.T) {
	l := newFakeLLM()
	l.failOn = "how fast"
	s := newFakeStore()
	a := newTestAnalyzer(l, s)

	err := a.AnalyzeReview(context.Background(), review("r1", "They came late and left a mess."))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped)

	got := s.saved["r1"]
	assert.Equal(t, models.StatusFailed, got.AnalysisStatus)
	assert.Nil(t, got.Analysis)
	require.NotNil(t, got.DisplayPriority)
	assert.Equal(t, 0, *got.DisplayPriority)
	assert.True(t, got.Keywords.Contains(models.KeywordAnalysisFailed))
}

func TestUnparseableSentimentFails(t *testing.T) {
	l := newFakeLLM()
	l.answers["overall sentiment"] = `{"sentiment":"ecstatic","confidence":1}`
	s := newFakeStore()
	a := newTestAnalyzer(l, s)

	require.Error(t, a.AnalyzeReview(context.Background(), review("r1", "Best plumber in town, no doubt.")))
	assert.Equal(t, models.StatusFailed, s.saved["r1"].AnalysisStatus)
}

func TestAnalyzeBusinessCountsOutcomes(t *testing.T) {
	l := newFakeLLM()
	ok := review("r1", "Fixed the furnace in an hour, very tidy.")
	short := review("r2", "ok")
	bad := review("r3", "Bad sentiment prompt will fail here.")
	s := newFakeStore(ok, short, bad)

	a := newTestAnalyzer(&selectiveLLM{fakeLLM: l, failReview: "Bad sentiment"}, s)
	res, err := a.AnalyzeBusiness(context.Background(), "biz-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analyzed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "r3")
}

func TestAnalyzeImportBatch(t *testing.T) {
	batch := "batch-7"
	r1 := review("r1", "Quick response and fair price overall.")
	r1.ImportBatchID = &batch
	r2 := review("r2", "Not part of the import batch at all.")
	s := newFakeStore(r1, r2)

	res, err := newTestAnalyzer(newFakeLLM(), s).AnalyzeImportBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analyzed)
	_, touched := s.saved["r2"]
	assert.False(t, touched)
}

func TestResetFailed(t *testing.T) {
	s := newFakeStore()
	s.resetCount = 3
	n, err := newTestAnalyzer(newFakeLLM(), s).ResetFailed(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// selectiveLLM fails every request for reviews containing failReview.
type selectiveLLM struct {
	*fakeLLM
	failReview string
}

func (s *selectiveLLM) ExtractJSON(ctx context.Context, r llm.Request, out any) error {
	if strings.Contains(r.Prompt, s.failReview) {
		return errors.New("invalid json from provider")
	}
	return s.fakeLLM.ExtractJSON(ctx, r, out)
}
