package ranking

import (
	"context"
	"fmt"
	"math"

	"github.com/nitesh/bizrank/pkg/models"
)

type FreshnessCounts struct {
	Fresh   int `json:"fresh"`
	Stale   int `json:"stale"`
	Expired int `json:"expired"`
}

type ScoringCoverage struct {
	Total    int     `json:"total"`
	Scored   int     `json:"scored"`
	Coverage float64 `json:"coverage"`
}

// Status is the health report of the ranking system.
type Status struct {
	TotalCombinations  int                `json:"total_combinations"`
	CachedCombinations int                `json:"cached_combinations"`
	Coverage           float64            `json:"coverage"`
	Caches             FreshnessCounts    `json:"caches"`
	Businesses         ScoringCoverage    `json:"businesses"`
	CityAverages       map[string]float64 `json:"city_averages"`
	Recommendations    []string           `json:"recommendations"`
}

// Status reports coverage, cache freshness and scoring coverage.
func (p *Processor) Status(ctx context.Context) (*Status, error) {
	cities, err := p.store.ListActiveCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	categories, err := p.store.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	caches, err := p.store.ListRankingCaches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ranking caches: %w", err)
	}
	total, scored, err := p.store.CountBusinesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("count businesses: %w", err)
	}
	averages, err := p.store.AverageScoreByCity(ctx)
	if err != nil {
		return nil, fmt.Errorf("average score by city: %w", err)
	}

	now := p.now()
	active := make(map[string]bool, len(cities)*len(categories))
	for _, c := range cities {
		for _, cat := range categories {
			active[c.Slug+"/"+cat.Slug] = true
		}
	}

	st := &Status{
		TotalCombinations: len(active),
		CityAverages:      averages,
		Businesses:        ScoringCoverage{Total: total, Scored: scored, Coverage: percent(scored, total)},
	}
	for _, rc := range caches {
		f := rc.Freshness(now)
		switch f {
		case models.Fresh:
			st.Caches.Fresh++
		case models.Stale:
			st.Caches.Stale++
		default:
			st.Caches.Expired++
		}
		if rc.RankingType == models.RankingOverall && f != models.Expired && active[rc.City+"/"+rc.Category] {
			st.CachedCombinations++
		}
	}
	st.Coverage = percent(st.CachedCombinations, st.TotalCombinations)
	st.Recommendations = recommend(st)
	return st, nil
}

func recommend(st *Status) []string {
	var out []string
	if st.TotalCombinations > 0 && st.Coverage < 80 {
		out = append(out, fmt.Sprintf("Ranking coverage is %.1f%%: run a full recalculation", st.Coverage))
	}
	live := st.Caches.Fresh + st.Caches.Stale
	if live > 0 && float64(st.Caches.Stale)/float64(live) > 0.2 {
		out = append(out, fmt.Sprintf("%d ranking caches are stale: schedule a ranking update", st.Caches.Stale))
	}
	if st.Caches.Expired > 0 {
		out = append(out, fmt.Sprintf("%d ranking caches have expired: run cleanup", st.Caches.Expired))
	}
	if st.Businesses.Total > 0 && st.Businesses.Coverage < 90 {
		out = append(out, fmt.Sprintf("Only %.1f%% of businesses are scored: trigger performance calculation", st.Businesses.Coverage))
	}
	if len(out) == 0 {
		out = append(out, "Ranking system healthy")
	}
	return out
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*1000) / 10
}
