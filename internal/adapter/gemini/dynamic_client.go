package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"jurisense/backend/internal/settings"
)

// DynamicClient reads the API key from settings on every call and
// recreates the underlying genai client when the key changes. fallbackKey
// is used while no key is stored.
type DynamicClient struct {
	settingsSvc *settings.Service
	fallbackKey string
	genModel    string
	embedModel  string
	client      *genai.Client
	currentKey  string
	mu          sync.RWMutex
	clientOpts  []option.ClientOption
}

func NewDynamicClient(svc *settings.Service, fallbackKey, genModel, embedModel string, opts ...option.ClientOption) *DynamicClient {
	return &DynamicClient{
		settingsSvc: svc,
		fallbackKey: fallbackKey,
		genModel:    orDefault(genModel, DefaultGenerateModel),
		embedModel:  orDefault(embedModel, DefaultEmbedModel),
		clientOpts:  opts,
	}
}

func (c *DynamicClient) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}
	return generate(ctx, client, c.genModel, prompt)
}

func (c *DynamicClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return embed(ctx, client, c.embedModel, texts)
}

func (c *DynamicClient) resolve(ctx context.Context) (*genai.Client, error) {
	s, err := c.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	key := s.GeminiAPIKey
	if key == "" {
		key = c.fallbackKey
	}
	if key == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	return c.getClient(ctx, key)
}

func (c *DynamicClient) getClient(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}
