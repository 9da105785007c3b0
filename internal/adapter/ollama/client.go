package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultGenerateModel = "llama3.2:latest"
	DefaultEmbedModel    = "nomic-embed-text"

	maxLineSize = 4 << 20
)

// Client talks to a local Ollama server.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	client     *http.Client
}

func NewClient(baseURL, genModel, embedModel string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if genModel == "" {
		genModel = DefaultGenerateModel
	}
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		// Stage timeouts bound calls through the context.
		client: &http.Client{Timeout: 30 * time.Minute},
	}
}

func (c *Client) GenerateModel() string { return c.genModel }
func (c *Client) EmbedModel() string    { return c.embedModel }

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate streams a completion and returns the accumulated text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, "/api/generate", map[string]interface{}{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": true,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.WarnContext(ctx, "skipping malformed ollama stream line", "error", err)
			continue
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama generate: %s", chunk.Error)
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("ollama generate stream: %w", err)
	}

	slog.DebugContext(ctx, "ollama generation finished", "model", c.genModel, "response_len", sb.Len())
	return sb.String(), nil
}

// Embed embeds all texts in one request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.post(ctx, "/api/embed", map[string]interface{}{
		"model": c.embedModel,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed: decode response: %w", err)
	}
	return result.Embeddings, nil
}

// Ping checks that the server answers and lists models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
