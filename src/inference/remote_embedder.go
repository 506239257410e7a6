package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/api/option"

	"www.github.com/Wanderer0074348/HybridInfer/src/config"
)

// NewRemoteEmbedder builds the API-backed embedder selected by cfg.Provider.
func NewRemoteEmbedder(ctx context.Context, cfg *config.RemoteEmbeddingConfig) (Embedder, error) {
	if cfg.APIKey == "" && cfg.Provider != "openai-compatible" {
		return nil, errors.New("remote embedding API key is not set")
	}

	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "openai-compatible":
		return NewCompatibleEmbedder(cfg)
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown remote embedding provider %q", cfg.Provider)
	}
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIEmbedder(cfg *config.RemoteEmbeddingConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) Close() error { return nil }

// CompatibleEmbedder talks to any OpenAI-compatible embeddings server through langchaingo.
type CompatibleEmbedder struct {
	llm     *lcopenai.LLM
	timeout time.Duration
}

func NewCompatibleEmbedder(cfg *config.RemoteEmbeddingConfig) (*CompatibleEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai-compatible provider requires base_url")
	}
	token := cfg.APIKey
	if token == "" {
		// langchaingo refuses an empty token even for servers that ignore it
		token = "unused"
	}
	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithToken(token),
		lcopenai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return &CompatibleEmbedder{llm: llm, timeout: cfg.Timeout}, nil
}

func (e *CompatibleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return vectors, nil
}

func (e *CompatibleEmbedder) Close() error { return nil }

// GeminiEmbedder uses the Gemini batch embedding API.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.RemoteEmbeddingConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			return nil, errors.New("gemini returned an empty embedding")
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

func (e *GeminiEmbedder) Close() error { return e.client.Close() }

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
