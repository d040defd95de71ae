// Package badges awards evidence-backed performance badges.
package badges

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nitesh/bizrank/pkg/models"
)

// MaxBadges is the most badges a business can hold.
const MaxBadges = 3

// AspectEvidence is what the reviews say about one aspect.
type AspectEvidence struct {
	Mentions          int
	ResponseTime      string
	HighUrgencyRate   float64
	ExpensiveRate     float64
	GreatDealRate     float64
	Workmanship       float64
	DetailRate        float64
	FollowThroughRate float64
}

// Evidence gathers per-aspect evidence from analyzed reviews.
func Evidence(reviews []*models.Review) map[models.Aspect]AspectEvidence {
	out := make(map[models.Aspect]AspectEvidence, len(models.Aspects))
	responseTimes := map[string]int{}
	var urgent, expensive, greatDeal, detail, follow float64
	var workSum float64
	var workN int

	speed, value, quality, reliability := AspectEvidence{}, AspectEvidence{}, AspectEvidence{}, AspectEvidence{}
	for _, r := range reviews {
		if !r.Analyzed() {
			continue
		}
		an := r.Analysis
		if an.Speed.HasMention {
			speed.Mentions++
			if an.Speed.ResponseTime != "" {
				responseTimes[an.Speed.ResponseTime]++
			}
			if an.Speed.UrgencyLevel == models.UrgencyHigh {
				urgent++
			}
		}
		if an.ValueAspect.HasMention {
			value.Mentions++
			switch an.ValueAspect.PricePerception {
			case models.PriceExpensive:
				expensive++
			case models.PriceGreatDeal:
				greatDeal++
			}
		}
		if an.Quality.HasMention {
			quality.Mentions++
			if an.Quality.DetailOriented {
				detail++
			}
			if an.Quality.WorkmanshipScore != nil {
				workSum += *an.Quality.WorkmanshipScore
				workN++
			}
		}
		if an.Reliability.HasMention {
			reliability.Mentions++
			if an.Reliability.FollowThrough {
				follow++
			}
		}
	}

	speed.ResponseTime = mostCommon(responseTimes)
	speed.HighUrgencyRate = share(urgent, speed.Mentions)
	value.ExpensiveRate = share(expensive, value.Mentions)
	value.GreatDealRate = share(greatDeal, value.Mentions)
	quality.DetailRate = share(detail, quality.Mentions)
	if workN > 0 {
		quality.Workmanship = workSum / float64(workN)
	}
	reliability.FollowThroughRate = share(follow, reliability.Mentions)

	out[models.AspectSpeed] = speed
	out[models.AspectValue] = value
	out[models.AspectQuality] = quality
	out[models.AspectReliability] = reliability
	return out
}

// Generate awards at most one badge per aspect, and at most MaxBadges in
// total, for a business with the given analyzed reviews. The result depends
// only on its inputs.
func Generate(b *models.Business, reviews []*models.Review) []models.Badge {
	ev := Evidence(reviews)
	type awarded struct {
		badge models.Badge
		score float64
		order int
	}
	var won []awarded
	for i, a := range models.Aspects {
		score := b.AspectScore(a)
		if score <= 0 {
			continue
		}
		for _, c := range criteria[a] {
			if !c.satisfied(score, ev[a]) {
				continue
			}
			won = append(won, awarded{
				badge: models.Badge{
					Aspect:   a,
					Name:     c.Name,
					Tier:     c.Tier,
					Priority: c.Priority,
					Text:     render(c.Template, score, ev[a]),
				},
				score: score,
				order: i,
			})
			break
		}
	}

	sort.SliceStable(won, func(i, j int) bool {
		if won[i].badge.Priority != won[j].badge.Priority {
			return won[i].badge.Priority < won[j].badge.Priority
		}
		if won[i].score != won[j].score {
			return won[i].score > won[j].score
		}
		return won[i].order < won[j].order
	})
	if len(won) > MaxBadges {
		won = won[:MaxBadges]
	}

	out := make([]models.Badge, 0, len(won))
	for _, w := range won {
		out = append(out, w.badge)
	}
	return out
}

func render(tmpl string, score float64, ev AspectEvidence) string {
	workmanship := ev.Workmanship
	if workmanship == 0 {
		workmanship = score
	}
	return strings.NewReplacer(
		"{score}", strconv.FormatFloat(score, 'f', 1, 64),
		"{mentions}", strconv.Itoa(ev.Mentions),
		"{response_time}", ev.ResponseTime,
		"{great_deal_pct}", pct(ev.GreatDealRate),
		"{workmanship}", strconv.FormatFloat(workmanship, 'f', 1, 64),
		"{detail_pct}", pct(ev.DetailRate),
		"{follow_through_pct}", pct(ev.FollowThroughRate),
		"{urgent_pct}", pct(ev.HighUrgencyRate),
	).Replace(tmpl)
}

func pct(r float64) string {
	return fmt.Sprintf("%d", int(math.Round(r*100)))
}

func share(n float64, of int) float64 {
	if of == 0 {
		return 0
	}
	return n / float64(of)
}

// mostCommon picks the most frequent value, breaking ties alphabetically.
func mostCommon(counts map[string]int) string {
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}
