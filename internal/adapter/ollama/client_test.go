package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jurisense/backend/internal/adapter/ollama"
)

func TestClient_Generate_AccumulatesStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2:latest", body["model"])
		assert.Equal(t, "explain", body["prompt"])
		assert.Equal(t, true, body["stream"])

		for _, part := range []string{`{"terms":`, `[]`, `}`} {
			fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", part)
		}
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer ts.Close()

	client := ollama.NewClient(ts.URL, "", "")
	out, err := client.Generate(context.Background(), "explain")
	require.NoError(t, err)
	assert.Equal(t, `{"terms":[]}`, out)
}

func TestClient_Generate_StreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"par","done":false}`)
		fmt.Fprintln(w, `{"error":"model crashed"}`)
	}))
	defer ts.Close()

	_, err := ollama.NewClient(ts.URL, "", "").Generate(context.Background(), "p")
	assert.ErrorContains(t, err, "model crashed")
}

func TestClient_Generate_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'x' not found"}`))
	}))
	defer ts.Close()

	_, err := ollama.NewClient(ts.URL, "x", "").Generate(context.Background(), "p")
	assert.ErrorContains(t, err, "status 404")
	assert.ErrorContains(t, err, "not found")
}

func TestClient_Generate_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ollama.NewClient(ts.URL, "", "").Generate(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Embed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body.Model)
		assert.Equal(t, []string{"a", "b"}, body.Input)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      body.Model,
			"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer ts.Close()

	vecs, err := ollama.NewClient(ts.URL+"/", "", "").Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestClient_Embed_Empty(t *testing.T) {
	vecs, err := ollama.NewClient("http://127.0.0.1:1", "", "").Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestClient_Ping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer ts.Close()

	client := ollama.NewClient(ts.URL, "", "")
	assert.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, ollama.DefaultGenerateModel, client.GenerateModel())
	assert.Equal(t, ollama.DefaultEmbedModel, client.EmbedModel())

	assert.Error(t, ollama.NewClient("http://127.0.0.1:1", "", "").Ping(context.Background()))
}
