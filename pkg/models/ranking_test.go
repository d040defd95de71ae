package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheUpdatedAt(now time.Time, age time.Duration) *RankingCache {
	updated := now.Add(-age)
	return &RankingCache{LastUpdated: updated, ExpiresAt: updated.Add(CacheTTL)}
}

func TestRankingCacheFreshnessBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, Fresh, cacheUpdatedAt(now, 23*time.Hour+59*time.Minute).Freshness(now))
	assert.Equal(t, Stale, cacheUpdatedAt(now, 24*time.Hour+time.Minute).Freshness(now))
	assert.Equal(t, Stale, cacheUpdatedAt(now, 6*24*time.Hour).Freshness(now))
	assert.Equal(t, Expired, cacheUpdatedAt(now, 7*24*time.Hour+time.Second).Freshness(now))
}

func TestRankingCacheExpiresAtWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &RankingCache{LastUpdated: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, Expired, c.Freshness(now))
}

func TestRankedBusinessesRoundTrip(t *testing.T) {
	prev := 3
	in := RankedBusinesses{{
		BusinessID:       "b1",
		OverallScore:     82.5,
		RankingPosition:  1,
		PreviousPosition: &prev,
		PerformanceBadges: []Badge{{
			Aspect: AspectSpeed, Name: "Lightning Fast", Tier: BadgeGold, Priority: 1,
			Text: "Lightning Fast • 18 minutes Response",
		}},
	}}
	v, err := in.Value()
	require.NoError(t, err)

	var out RankedBusinesses
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	c := RankingCache{Rankings: out}
	pos, ok := c.Position("b1")
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestRankingTypeValid(t *testing.T) {
	assert.True(t, RankingOverall.Valid())
	assert.True(t, RankingTypeFor(AspectQuality).Valid())
	assert.False(t, RankingType("price").Valid())

	b := &Business{OverallScore: 70, QualityScore: 8.5}
	assert.Equal(t, 70.0, RankingOverall.Score(b))
	assert.Equal(t, 8.5, RankingTypeFor(AspectQuality).Score(b))
}

func TestReviewMentions(t *testing.T) {
	r := &Review{AnalysisStatus: StatusAnalyzed, Analysis: &ReviewAnalysis{
		Speed: SpeedMention{HasMention: true},
	}}
	assert.True(t, r.Mentions(AspectSpeed))
	assert.False(t, r.Mentions(AspectValue))
	assert.True(t, r.MentionsAny())

	r.AnalysisStatus = StatusFailed
	assert.False(t, r.MentionsAny())
}
