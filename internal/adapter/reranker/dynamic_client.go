package reranker

import (
	"context"
	"fmt"
	"sync"

	"jurisense/backend/internal/settings"
)

// DynamicClient picks the rerank provider and key from settings on every
// call, reusing the HTTP client while they stay the same.
type DynamicClient struct {
	settingsSvc *settings.Service
	client      *Client
	mu          sync.Mutex
}

func NewDynamicClient(svc *settings.Service) *DynamicClient {
	return &DynamicClient{settingsSvc: svc}
}

func (d *DynamicClient) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	s, err := d.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if _, ok := providers[s.RerankProvider]; !ok {
		return identity(len(docs)), nil
	}
	return d.getClient(s.RerankProvider, s.RerankAPIKey).Rerank(ctx, query, docs)
}

func (d *DynamicClient) getClient(provider, apiKey string) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil && d.client.provider == provider && d.client.apiKey == apiKey {
		return d.client
	}
	d.client = NewClient(provider, apiKey)
	return d.client
}
