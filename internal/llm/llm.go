package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is a minimal Ollama-compatible LLM client.
type Client struct {
	url         string
	model       string
	maxTokens   int
	temperature float64
	hc          *http.Client
	log         *logrus.Entry
}

// Options tunes generation for every request issued by a Client.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Request is one completion: a system instruction plus the user prompt.
type Request struct {
	System string
	Prompt string
}

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// NewClient creates a new client. If httpClient is nil, a default with timeout is used.
func NewClient(url, model string, opts Options, httpClient *http.Client, log *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Client{
		url:         url,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		hc:          httpClient,
		log:         log,
	}
}

// Complete sends a non-streaming request (stream=false, format=json) and
// returns the text the model produced.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"system":      r.System,
		"prompt":      r.Prompt,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"format":      "json",
		"stream":      false,
		"options": map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("llm new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	c.log.WithFields(logrus.Fields{
		"model":   c.model,
		"latency": time.Since(start).String(),
		"failed":  err != nil,
	}).Debug("llm request")
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	text := extractText(respBody)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ExtractJSON completes r and decodes the single JSON object the model
// returned into out. Anything but one JSON object is an error.
func (c *Client) ExtractJSON(ctx context.Context, r Request, out any) error {
	text, err := c.Complete(ctx, r)
	if err != nil {
		return err
	}
	return DecodeObject(text, out)
}

// DecodeObject strictly decodes one JSON object, tolerating only surrounding
// whitespace and a markdown code fence.
func DecodeObject(text string, out any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return fmt.Errorf("llm: response is not a json object: %.80q", s)
	}
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("llm: decode response: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("llm: trailing data after json object")
	}
	return nil
}

// extractText understands the common response shapes:
// {"response": ...} (Ollama), {"text": ...}, {"choices":[{"text"|"message":{"content"}}]}
// and {"results":[{"response"|"text"}]}. A non-JSON body is returned as is.
func extractText(respBody []byte) string {
	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return string(bytes.TrimSpace(respBody))
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := m["response"].(string); ok && s != "" {
		return s
	}
	if s, ok := m["text"].(string); ok && s != "" {
		return s
	}
	if arr, ok := m["choices"].([]any); ok && len(arr) > 0 {
		if first, ok := arr[0].(map[string]any); ok {
			if s, ok := first["text"].(string); ok && s != "" {
				return s
			}
			if msg, ok := first["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	if arr, ok := m["results"].([]any); ok {
		var buf strings.Builder
		for _, it := range arr {
			oo, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := oo["response"].(string); ok {
				buf.WriteString(s)
			} else if s, ok := oo["text"].(string); ok {
				buf.WriteString(s)
			}
		}
		return buf.String()
	}
	return ""
}
