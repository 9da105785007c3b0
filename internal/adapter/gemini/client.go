package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultGenerateModel = "gemini-2.0-flash"
	DefaultEmbedModel    = "gemini-embedding-001"
)

var ErrEmptyResponse = errors.New("gemini returned no content")

// Client generates text and embeddings with a fixed API key.
type Client struct {
	client     *genai.Client
	genModel   string
	embedModel string
}

func NewClient(ctx context.Context, apiKey, genModel, embedModel string, opts ...option.ClientOption) (*Client, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, genModel: orDefault(genModel, DefaultGenerateModel), embedModel: orDefault(embedModel, DefaultEmbedModel)}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return generate(ctx, c.client, c.genModel, prompt)
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embed(ctx, c.client, c.embedModel, texts)
}

func (c *Client) Close() error {
	return c.client.Close()
}

func generate(ctx context.Context, client *genai.Client, modelName, prompt string) (string, error) {
	slog.DebugContext(ctx, "generating content", "model", modelName, "prompt_len", len(prompt))
	model := client.GenerativeModel(modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", modelName, "error", err)
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}

func embed(ctx context.Context, client *genai.Client, modelName string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	slog.DebugContext(ctx, "embedding content", "model", modelName, "count", len(texts))

	em := client.EmbeddingModel(modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "model", modelName, "error", err)
		return nil, err
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding received for input %d", i)
		}
		vectors = append(vectors, e.Values)
	}
	return vectors, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
