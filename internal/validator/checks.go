package validator

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/nitesh/bizrank/pkg/models"
)

// Thresholds of the health checks.
const (
	NormalMeanMin   = 40.0
	NormalMeanMax   = 70.0
	NormalStdDevMin = 10.0
	NormalStdDevMax = 30.0

	SuspiciousHighScore  = 95.0
	SuspiciousLowScore   = 5.0
	LowScoreReviewCount  = 10
	AspectStdDevLimit    = 3.0
	BalanceDeviation     = 20.0
	TopN                 = 100
	TierOverrepresentPts = 15.0

	// FailAnomalyCount anomalies or more fail the run.
	FailAnomalyCount = 10
)

// ExpectedTier is the rank band a known business should land in.
type ExpectedTier string

const (
	Top10 ExpectedTier = "top10"
	Top25 ExpectedTier = "top25"
	Top50 ExpectedTier = "top50"
)

func (t ExpectedTier) limit() int {
	switch t {
	case Top10:
		return 10
	case Top25:
		return 25
	default:
		return 50
	}
}

// KnownBusiness is a reference business with an agreed rank band.
type KnownBusiness struct {
	Name     string
	Expected ExpectedTier
}

// KnownBusinesses are the reference businesses spot-checked on every run.
var KnownBusinesses = []KnownBusiness{
	{Name: "Austin Comfort Air", Expected: Top10},
	{Name: "Lone Star Plumbing Co", Expected: Top10},
	{Name: "Bright Spark Electric", Expected: Top25},
	{Name: "Hill Country Roofing", Expected: Top25},
	{Name: "Greenline Landscapes", Expected: Top50},
	{Name: "Spotless Home Cleaning", Expected: Top50},
}

type Distribution struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	P10       float64 `json:"p10"`
	P25       float64 `json:"p25"`
	P75       float64 `json:"p75"`
	P90       float64 `json:"p90"`
	Normal    bool    `json:"normal"`
	Histogram [10]int `json:"histogram"`
}

type SpotCheck struct {
	Name     string       `json:"name"`
	Expected ExpectedTier `json:"expected"`
	Position int          `json:"position,omitempty"`
	Found    bool         `json:"found"`
	Passed   bool         `json:"passed"`
}

type AnomalyKind string

const (
	AnomalyHighScore      AnomalyKind = "suspiciously_high"
	AnomalyLowScore       AnomalyKind = "low_despite_reviews"
	AnomalyAspectVariance AnomalyKind = "aspect_variance"
)

type Anomaly struct {
	BusinessID string      `json:"business_id"`
	Name       string      `json:"name"`
	Kind       AnomalyKind `json:"kind"`
	Value      float64     `json:"value"`
}

// GroupBalance is the average overall score of one category or city.
type GroupBalance struct {
	Group     string  `json:"group"`
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
	Deviation float64 `json:"deviation"`
	Flagged   bool    `json:"flagged"`
}

type TierShare struct {
	Tier            models.PlanTier `json:"tier"`
	TopCount        int             `json:"top_count"`
	TopShare        float64         `json:"top_share"`
	PopulationShare float64         `json:"population_share"`
	Flagged         bool            `json:"flagged"`
}

// rankGlobal orders businesses by overall score, then name, then id.
func rankGlobal(businesses []*models.Business) []*models.Business {
	out := make([]*models.Business, len(businesses))
	copy(out, businesses)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

func distribution(businesses []*models.Business) Distribution {
	d := Distribution{Count: len(businesses)}
	if d.Count == 0 {
		return d
	}
	scores := make([]float64, 0, d.Count)
	for _, b := range businesses {
		scores = append(scores, b.OverallScore)
		bucket := int(b.OverallScore / 10)
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		d.Histogram[bucket]++
	}
	sort.Float64s(scores)

	d.Mean = round1(stat.Mean(scores, nil))
	if d.Count > 1 {
		d.StdDev = round1(stat.StdDev(scores, nil))
	}
	d.Min = scores[0]
	d.Max = scores[len(scores)-1]
	d.Median = stat.Quantile(0.5, stat.Empirical, scores, nil)
	d.P10 = stat.Quantile(0.1, stat.Empirical, scores, nil)
	d.P25 = stat.Quantile(0.25, stat.Empirical, scores, nil)
	d.P75 = stat.Quantile(0.75, stat.Empirical, scores, nil)
	d.P90 = stat.Quantile(0.9, stat.Empirical, scores, nil)
	d.Normal = d.Mean >= NormalMeanMin && d.Mean <= NormalMeanMax &&
		d.StdDev >= NormalStdDevMin && d.StdDev <= NormalStdDevMax
	return d
}

func spotChecks(ranked []*models.Business, known []KnownBusiness) []SpotCheck {
	pos := make(map[string]int, len(ranked))
	for i, b := range ranked {
		k := strings.ToLower(b.Name)
		if _, seen := pos[k]; !seen {
			pos[k] = i + 1
		}
	}
	out := make([]SpotCheck, 0, len(known))
	for _, kb := range known {
		sc := SpotCheck{Name: kb.Name, Expected: kb.Expected}
		if p, ok := pos[strings.ToLower(kb.Name)]; ok {
			sc.Found = true
			sc.Position = p
			sc.Passed = p <= kb.Expected.limit()
		}
		out = append(out, sc)
	}
	return out
}

func anomalies(businesses []*models.Business) []Anomaly {
	var out []Anomaly
	for _, b := range businesses {
		if b.OverallScore > SuspiciousHighScore {
			out = append(out, Anomaly{BusinessID: b.ID, Name: b.Name, Kind: AnomalyHighScore, Value: b.OverallScore})
		}
		if b.OverallScore < SuspiciousLowScore && b.ReviewCount > LowScoreReviewCount {
			out = append(out, Anomaly{BusinessID: b.ID, Name: b.Name, Kind: AnomalyLowScore, Value: b.OverallScore})
		}
		aspects := make([]float64, 0, len(models.Aspects))
		for _, a := range models.Aspects {
			aspects = append(aspects, b.AspectScore(a))
		}
		if _, sd := stat.PopMeanStdDev(aspects, nil); sd > AspectStdDevLimit {
			out = append(out, Anomaly{BusinessID: b.ID, Name: b.Name, Kind: AnomalyAspectVariance, Value: round1(sd)})
		}
	}
	return out
}

// balance groups businesses by key and flags groups whose average strays
// more than BalanceDeviation points from the global mean.
func balance(businesses []*models.Business, globalMean float64, key func(*models.Business) string) []GroupBalance {
	groups := map[string][]float64{}
	for _, b := range businesses {
		k := key(b)
		groups[k] = append(groups[k], b.OverallScore)
	}
	out := make([]GroupBalance, 0, len(groups))
	for g, scores := range groups {
		avg := round1(stat.Mean(scores, nil))
		dev := round1(avg - globalMean)
		out = append(out, GroupBalance{
			Group:     g,
			Count:     len(scores),
			Average:   avg,
			Deviation: dev,
			Flagged:   math.Abs(dev) > BalanceDeviation,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

func tierShares(ranked []*models.Business) []TierShare {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked
	if len(top) > TopN {
		top = top[:TopN]
	}
	population := map[models.PlanTier]int{}
	inTop := map[models.PlanTier]int{}
	for _, b := range ranked {
		population[tierOf(b)]++
	}
	for _, b := range top {
		inTop[tierOf(b)]++
	}
	out := make([]TierShare, 0, len(models.PlanTiers))
	for _, t := range models.PlanTiers {
		ts := TierShare{
			Tier:            t,
			TopCount:        inTop[t],
			TopShare:        round1(100 * float64(inTop[t]) / float64(len(top))),
			PopulationShare: round1(100 * float64(population[t]) / float64(len(ranked))),
		}
		ts.Flagged = ts.TopShare-ts.PopulationShare > TierOverrepresentPts
		out = append(out, ts)
	}
	return out
}

func tierOf(b *models.Business) models.PlanTier {
	if b.PlanTier == "" {
		return models.TierFree
	}
	return b.PlanTier
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
