package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type provider struct {
	url   string
	model string
	// topN asks the provider to score every document
	topN bool
}

var providers = map[string]provider{
	"jina":   {url: "https://api.jina.ai/v1/rerank", model: "jina-reranker-v2-base-multilingual"},
	"cohere": {url: "https://api.cohere.ai/v1/rerank", model: "rerank-english-v3.0", topN: true},
}

// Client reorders retrieved passages with a hosted rerank API. Unknown or
// empty providers keep the input order.
type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Rerank returns document indices, most relevant first.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	p, ok := providers[c.provider]
	if !ok || len(docs) == 0 {
		return identity(len(docs)), nil
	}

	url := p.url
	if c.baseURL != "" {
		url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":     p.model,
		"query":     query,
		"documents": docs,
	}
	if p.topN {
		reqBody["top_n"] = len(docs)
		reqBody["return_documents"] = false
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s api error: %d %s", c.provider, resp.StatusCode, string(body))
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(docs))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(docs) {
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}

func identity(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
