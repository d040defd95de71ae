package scoring

import (
	"math"
	"time"

	"github.com/nitesh/bizrank/pkg/models"
)

// Scores are the derived figures for one business.
type Scores struct {
	Aspects       map[models.Aspect]float64
	Overall       float64
	RecencyFactor float64
	Confidence    int
	Detailed      models.DetailedMetrics
}

// Compute derives all scores for a business in category from its analyzed
// reviews. reviews must be non-empty.
func Compute(category string, reviews []*models.Review, now time.Time) Scores {
	s := Scores{Aspects: make(map[models.Aspect]float64, len(models.Aspects))}
	for _, a := range models.Aspects {
		s.Aspects[a] = AspectScore(reviews, a)
	}

	w := WeightsFor(category)
	var weighted float64
	for _, a := range models.Aspects {
		weighted += s.Aspects[a] * w[a]
	}
	s.RecencyFactor = RecencyFactor(reviews, now)
	s.Overall = round1(clamp(weighted/w.total()*10*s.RecencyFactor, 0, 100))
	s.Confidence = Confidence(reviews)
	s.Detailed = detailed(reviews, s.RecencyFactor)
	return s
}

// AspectScore averages the per-review points of reviews mentioning a. With no
// mentions it falls back to min(10, avg rating × 2).
func AspectScore(reviews []*models.Review, a models.Aspect) float64 {
	var sum float64
	var n int
	for _, r := range reviews {
		if !r.Mentions(a) {
			continue
		}
		sum += mentionPoints(r, a)
		n++
	}
	if n == 0 {
		return round1(math.Min(10, averageRating(reviews)*2))
	}
	return round1(sum / float64(n))
}

// mentionPoints converts one mentioning review into a 0–10 value. The LLM
// sub-score is preferred over rating × 2; aspect bonuses apply to either.
func mentionPoints(r *models.Review, a models.Aspect) float64 {
	base := float64(r.Rating) * 2
	an := r.Analysis
	switch a {
	case models.AspectSpeed:
		switch an.Speed.UrgencyLevel {
		case models.UrgencyHigh:
			base += 2
		case models.UrgencyMedium:
			base++
		}
	case models.AspectValue:
		if an.ValueAspect.ValueScore != nil {
			base = *an.ValueAspect.ValueScore
		}
		switch an.ValueAspect.PricePerception {
		case models.PriceGreatDeal:
			base++
		case models.PriceExpensive:
			base--
		}
	case models.AspectQuality:
		if an.Quality.WorkmanshipScore != nil {
			base = *an.Quality.WorkmanshipScore
		}
		if an.Quality.DetailOriented {
			base++
		}
	case models.AspectReliability:
		if an.Reliability.ConsistencyScore != nil {
			base = *an.Reliability.ConsistencyScore
		}
		if an.Reliability.FollowThrough {
			base++
		}
	}
	return clamp(base, 0, 10)
}

// RecencyWeight is the step function of review age.
func RecencyWeight(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days <= 30:
		return 1.0
	case days <= 90:
		return 0.8
	case days <= 180:
		return 0.6
	case days <= 365:
		return 0.4
	default:
		return 0.2
	}
}

// RecencyFactor averages RecencyWeight over all reviews.
func RecencyFactor(reviews []*models.Review, now time.Time) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += RecencyWeight(now.Sub(r.CreatedAt))
	}
	return sum / float64(len(reviews))
}

// Confidence is min(100, 50·n/10 + 25·verified share + 25·mention share).
func Confidence(reviews []*models.Review) int {
	n := len(reviews)
	if n == 0 {
		return 0
	}
	var verified, mentioning int
	for _, r := range reviews {
		if r.Verified {
			verified++
		}
		if r.MentionsAny() {
			mentioning++
		}
	}
	c := 50*(float64(n)/10) + 25*(float64(verified)/float64(n)) + 25*(float64(mentioning)/float64(n))
	return int(math.Round(math.Min(100, c)))
}

func detailed(reviews []*models.Review, recency float64) models.DetailedMetrics {
	d := models.DetailedMetrics{
		AverageRating: round2(averageRating(reviews)),
		RecencyFactor: round2(recency),
	}
	var expensive, priced, detail, follow, urgent float64
	var positive, neutral float64
	for _, r := range reviews {
		an := r.Analysis
		if an == nil {
			continue
		}
		switch an.Sentiment.Label {
		case models.SentimentPositive:
			positive++
		case models.SentimentNeutral:
			neutral++
		}
		if an.Speed.HasMention {
			d.SpeedMentions++
			if an.Speed.UrgencyLevel == models.UrgencyHigh {
				urgent++
			}
		}
		if an.ValueAspect.HasMention {
			d.ValueMentions++
			if an.ValueAspect.PricePerception != "" {
				priced++
			}
			if an.ValueAspect.PricePerception == models.PriceExpensive {
				expensive++
			}
		}
		if an.Quality.HasMention {
			d.QualityMentions++
			if an.Quality.DetailOriented {
				detail++
			}
		}
		if an.Reliability.HasMention {
			d.ReliabilityMentions++
			if an.Reliability.FollowThrough {
				follow++
			}
		}
	}
	d.HighUrgencyRate = round2(ratio(urgent, d.SpeedMentions))
	d.ExpensiveMentionRate = round2(ratio(expensive, d.ValueMentions))
	d.DetailOrientedRate = round2(ratio(detail, d.QualityMentions))
	d.FollowThroughRate = round2(ratio(follow, d.ReliabilityMentions))
	if priced > 0 {
		d.TransparencyScore = round1((priced - expensive) / priced * 10)
	}
	d.CommunicationScore = round1((positive + neutral/2) / float64(len(reviews)) * 10)
	return d
}

func averageRating(reviews []*models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += float64(r.Rating)
	}
	return sum / float64(len(reviews))
}

func ratio(num float64, den int) float64 {
	if den == 0 {
		return 0
	}
	return num / float64(den)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
