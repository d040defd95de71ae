// Package validator audits the stored rankings offline: score distribution,
// known-business spot checks, anomalies, group balance and plan-tier fairness.
package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/pkg/models"
)

type Store interface {
	// ListScoredBusinesses returns active businesses with an overall score,
	// each carrying its analyzed review count.
	ListScoredBusinesses(ctx context.Context) ([]*models.Business, error)
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityOrder = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

type Recommendation struct {
	Priority Priority `json:"priority"`
	Text     string   `json:"text"`
}

type Report struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Distribution    Distribution     `json:"distribution"`
	SpotChecks      []SpotCheck      `json:"spot_checks"`
	Anomalies       []Anomaly        `json:"anomalies"`
	Categories      []GroupBalance   `json:"categories"`
	Cities          []GroupBalance   `json:"cities"`
	Tiers           []TierShare      `json:"tiers"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Failed reports whether the run should exit non-zero.
func (r *Report) Failed() bool {
	return !r.Distribution.Normal || len(r.Anomalies) >= FailAnomalyCount
}

// Validate builds a report from the scored businesses.
func Validate(businesses []*models.Business, known []KnownBusiness, now time.Time) *Report {
	ranked := rankGlobal(businesses)
	r := &Report{
		GeneratedAt:  now,
		Distribution: distribution(ranked),
		SpotChecks:   spotChecks(ranked, known),
		Anomalies:    anomalies(ranked),
		Tiers:        tierShares(ranked),
	}
	r.Categories = balance(ranked, r.Distribution.Mean, func(b *models.Business) string { return b.Category })
	r.Cities = balance(ranked, r.Distribution.Mean, func(b *models.Business) string { return b.City })
	r.Recommendations = recommend(r)
	return r
}

func recommend(r *Report) []Recommendation {
	var out []Recommendation
	add := func(p Priority, format string, args ...any) {
		out = append(out, Recommendation{Priority: p, Text: fmt.Sprintf(format, args...)})
	}

	d := r.Distribution
	switch {
	case d.Count == 0:
		add(PriorityHigh, "No scored businesses found; run analysis and performance calculation first")
	case !d.Normal:
		if d.Mean < NormalMeanMin {
			add(PriorityHigh, "Mean score %.1f is below %.0f; scores are compressed low, review aspect fallbacks and weights", d.Mean, NormalMeanMin)
		}
		if d.Mean > NormalMeanMax {
			add(PriorityHigh, "Mean score %.1f is above %.0f; scores are inflated, review LLM sub-scores and bonuses", d.Mean, NormalMeanMax)
		}
		if d.StdDev < NormalStdDevMin {
			add(PriorityHigh, "Score spread %.1f is below %.0f; rankings barely separate businesses", d.StdDev, NormalStdDevMin)
		}
		if d.StdDev > NormalStdDevMax {
			add(PriorityHigh, "Score spread %.1f is above %.0f; check for outliers and recency decay", d.StdDev, NormalStdDevMax)
		}
	}

	if n := len(r.Anomalies); n >= FailAnomalyCount {
		add(PriorityHigh, "%d anomalous businesses; audit their reviews and analyses before publishing", n)
	} else if n > 0 {
		add(PriorityMedium, "Review %d anomalous businesses", n)
	}

	for _, g := range r.Categories {
		if g.Flagged {
			add(PriorityMedium, "Category %s averages %.1f (%+.1f from the mean); check its weights", g.Group, g.Average, g.Deviation)
		}
	}
	for _, g := range r.Cities {
		if g.Flagged {
			add(PriorityMedium, "City %s averages %.1f (%+.1f from the mean)", g.Group, g.Average, g.Deviation)
		}
	}
	for _, t := range r.Tiers {
		if !t.Flagged {
			continue
		}
		if t.Tier == models.TierFree {
			add(PriorityMedium, "Free-tier businesses hold %.1f%% of the top %d but are %.1f%% of the population", t.TopShare, TopN, t.PopulationShare)
		} else {
			add(PriorityMedium, "Plan tier %s holds %.1f%% of the top %d but is %.1f%% of the population; confirm tier does not leak into scoring", t.Tier, t.TopShare, TopN, t.PopulationShare)
		}
	}

	for _, sc := range r.SpotChecks {
		switch {
		case !sc.Found:
			add(PriorityLow, "Known business %q is not ranked", sc.Name)
		case !sc.Passed:
			add(PriorityLow, "Known business %q ranked #%d, expected %s", sc.Name, sc.Position, sc.Expected)
		}
	}

	if len(out) == 0 {
		add(PriorityLow, "Rankings look healthy; no action needed")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityOrder[out[i].Priority] < priorityOrder[out[j].Priority]
	})
	return out
}

type Validator struct {
	store Store
	known []KnownBusiness
	log   *logrus.Entry
	now   func() time.Time
}

func New(store Store, known []KnownBusiness, log *logrus.Entry) *Validator {
	return &Validator{store: store, known: known, log: log, now: time.Now}
}

// Run reads every scored business and validates the rankings.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	businesses, err := v.store.ListScoredBusinesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scored businesses: %w", err)
	}
	r := Validate(businesses, v.known, v.now())
	v.log.WithFields(logrus.Fields{
		"businesses": r.Distribution.Count,
		"mean":       r.Distribution.Mean,
		"std_dev":    r.Distribution.StdDev,
		"anomalies":  len(r.Anomalies),
		"failed":     r.Failed(),
	}).Info("ranking validation finished")
	return r, nil
}
