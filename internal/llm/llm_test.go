package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentiment struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

func TestExtractJSONOllamaShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"{\"sentiment\":\"positive\",\"confidence\":0.9}","done":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-model", Options{MaxTokens: 128, Temperature: 0.2}, nil, nil)
	var out sentiment
	err := c.ExtractJSON(context.Background(), Request{System: "sys", Prompt: "great job"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "positive", out.Sentiment)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, "sys", got["system"])
	assert.Equal(t, "great job", got["prompt"])
	assert.Equal(t, float64(128), got["max_tokens"])
	assert.Equal(t, 0.2, got["temperature"])
	assert.Equal(t, false, got["stream"])
}

func TestExtractJSONChatShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"sentiment\\\":\\\"negative\\\"}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", Options{}, nil, nil)
	var out sentiment
	require.NoError(t, c.ExtractJSON(context.Background(), Request{Prompt: "x"}, &out))
	assert.Equal(t, "negative", out.Sentiment)
}

func TestCompleteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", Options{}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
}

func TestCompleteEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", Options{}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDecodeObjectStrict(t *testing.T) {
	var out sentiment
	assert.Error(t, DecodeObject("Sure! The sentiment is positive.", &out))
	assert.Error(t, DecodeObject(`{"sentiment":"positive"} {"x":1}`, &out))
	assert.Error(t, DecodeObject(`{"sentiment":`, &out))
	require.NoError(t, DecodeObject("  {\"sentiment\":\"neutral\"}\n", &out))
	assert.Equal(t, "neutral", out.Sentiment)
}

func TestExtractTextResultsShape(t *testing.T) {
	assert.Equal(t, "ab", extractText([]byte(`{"results":[{"response":"a"},{"text":"b"}]}`)))
	assert.Equal(t, "plain", extractText([]byte("plain\n")))
}
