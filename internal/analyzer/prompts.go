package analyzer

import (
	"strings"

	"github.com/nitesh/bizrank/internal/llm"
)

const systemInstruction = "You analyze customer reviews of local service businesses. " +
	"Answer with a single JSON object exactly matching the requested shape and nothing else."

type prompt struct {
	name     string
	template string
}

var (
	sentimentPrompt = prompt{"sentiment", `Classify the overall sentiment of this review.
Return {"sentiment": "positive" | "neutral" | "negative", "confidence": number between 0 and 1}.

Review: {review_text}`}

	speedPrompt = prompt{"speed", `Does this review talk about how fast the business responded or finished the job?
Return {"has_mention": boolean, "response_time": string such as "20 minutes" or "" if not stated, "urgency_level": "high" | "medium" | "low" | ""}.

Review: {review_text}`}

	valuePrompt = prompt{"value", `Does this review talk about price or value for money?
Return {"has_mention": boolean, "price_perception": "great_deal" | "fair" | "expensive" | "", "value_score": number 0-10 or null}.

Review: {review_text}`}

	qualityPrompt = prompt{"quality", `Does this review talk about the quality of the work?
Return {"has_mention": boolean, "workmanship_score": number 0-10 or null, "detail_oriented": boolean}.

Review: {review_text}`}

	reliabilityPrompt = prompt{"reliability", `Does this review talk about reliability: showing up on time, keeping promises, consistent results?
Return {"has_mention": boolean, "consistency_score": number 0-10 or null, "follow_through": boolean}.

Review: {review_text}`}
)

func (p prompt) request(reviewText string) llm.Request {
	return llm.Request{
		System: systemInstruction,
		Prompt: strings.ReplaceAll(p.template, "{review_text}", reviewText),
	}
}
