// Package embeddings provides embedding generation via an OpenAI-compatible
// provider (Ollama, LiteLLM, or any gateway exposing /v1/embeddings).
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("resourced.embeddings")

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrEmbeddingFailed indicates the provider call failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrMalformedResponse indicates the provider returned no data or a
	// payload missing the embedding vector.
	ErrMalformedResponse = errors.New("malformed embeddings response")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the provider base address, e.g. http://localhost:11434.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Timeout bounds one provider call.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings over HTTP.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a new embedding service.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// embeddingsRequest is the OpenAI-compatible request body.
type embeddingsRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

// embeddingsResponse is the OpenAI-compatible response body.
type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery generates an embedding for a single text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for multiple texts, one vector per
// input in input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return s.embed(ctx, texts, len(texts))
}

func (s *Service) embed(ctx context.Context, input interface{}, want int) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "Embeddings.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", s.config.Model),
		attribute.Int("input_count", want),
	)

	body, err := json.Marshal(embeddingsRequest{Model: s.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		err := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, respBody)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding data returned", ErrMalformedResponse)
	}
	if len(parsed.Data) != want {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrMalformedResponse, len(parsed.Data), want)
	}

	vectors := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrMalformedResponse, i)
		}
		vectors[i] = item.Embedding
	}

	span.SetStatus(codes.Ok, "success")
	return vectors, nil
}
