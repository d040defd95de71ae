package analyzer

import (
	"time"
	"unicode/utf8"

	dbtypes "github.com/nitesh/bizrank/internal/db"
	"github.com/nitesh/bizrank/pkg/models"
)

// DisplayPriority ranks a review for display. Higher is shown first.
func DisplayPriority(r *models.Review, a *models.ReviewAnalysis, now time.Time) int {
	p := r.Rating * 10

	switch a.Sentiment.Label {
	case models.SentimentPositive:
		p += 15
	case models.SentimentNeutral:
		p += 5
	}

	for _, has := range []bool{a.Speed.HasMention, a.ValueAspect.HasMention, a.Quality.HasMention, a.Reliability.HasMention} {
		if has {
			p += 10
		}
	}

	switch n := utf8.RuneCountInString(r.Comment); {
	case n >= 200:
		p += 15
	case n >= 100:
		p += 10
	case n >= 50:
		p += 5
	}

	if r.Verified {
		p += 20
	}

	switch days := now.Sub(r.CreatedAt).Hours() / 24; {
	case days <= 30:
		p += 20
	case days <= 90:
		p += 10
	case days <= 180:
		p += 5
	}
	return p
}

// Keywords tags which sentiment and aspects an analysis found.
func Keywords(a *models.ReviewAnalysis) dbtypes.StringSlice {
	kw := dbtypes.StringSlice{"sentiment_" + string(a.Sentiment.Label)}
	if a.Speed.HasMention {
		kw = append(kw, string(models.AspectSpeed))
		if a.Speed.UrgencyLevel == models.UrgencyHigh {
			kw = append(kw, "high_urgency")
		}
	}
	if a.ValueAspect.HasMention {
		kw = append(kw, string(models.AspectValue))
		switch a.ValueAspect.PricePerception {
		case models.PriceGreatDeal:
			kw = append(kw, "great_deal")
		case models.PriceExpensive:
			kw = append(kw, "expensive")
		}
	}
	if a.Quality.HasMention {
		kw = append(kw, string(models.AspectQuality))
		if a.Quality.DetailOriented {
			kw = append(kw, "detail_oriented")
		}
	}
	if a.Reliability.HasMention {
		kw = append(kw, string(models.AspectReliability))
		if a.Reliability.FollowThrough {
			kw = append(kw, "follow_through")
		}
	}
	return kw
}
