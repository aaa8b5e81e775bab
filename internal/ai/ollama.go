// Package ai turns search queries into embeddings with a local Ollama model.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/ollama/ollama/api"
)

// MaxQueryLen caps the text sent to the embedding model, in bytes.
const MaxQueryLen = 2000

// OllamaEmbedder implements embedding.Embedder over the Ollama embed API.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

var _ embedding.Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder talks to baseURL, or to OLLAMA_HOST when baseURL is empty.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

// Embed returns one vector per input text, in order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncateText(strings.TrimSpace(t), MaxQueryLen)
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// truncateText cuts text to at most maxLen bytes without splitting a rune.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
