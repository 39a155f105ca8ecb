// Copyright 2025 MRCIS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package embed provides the OpenAI-compatible embedding client. It works
// against Ollama, LM Studio, OpenAI and any other server speaking the
// /embeddings protocol.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	mrcerrors "github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/pkg/config"
)

// Embedder converts text to vectors.
type Embedder interface {
	// EmbedTexts embeds a batch of texts, returning one vector per input in
	// input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Client is the OpenAI-compatible embedding client.
type Client struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	logger     *slog.Logger
	retry      RetryConfig
}

// RetryConfig tunes the retry schedule for retryable embedding failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// NewClient creates a client from configuration.
func NewClient(cfg config.EmbeddingConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		},
		logger: logger,
		retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// Initialize validates the provider by embedding a probe string and checking
// the returned dimensionality against the configuration.
func (c *Client) Initialize(ctx context.Context) error {
	vectors, err := c.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return err
	}
	if len(vectors) != 1 || len(vectors[0]) != c.cfg.Dimensions {
		got := 0
		if len(vectors) == 1 {
			got = len(vectors[0])
		}
		return mrcerrors.NewEmbeddingError(false,
			fmt.Errorf("model %s returned %d dimensions, expected %d", c.cfg.Model, got, c.cfg.Dimensions))
	}
	c.logger.Info("embedding.ready", "model", c.cfg.Model, "dimensions", c.cfg.Dimensions)
	return nil
}

// EmbedTexts embeds texts in batches of the configured batch size. Results
// come back in input order regardless of provider ordering.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxRetries; attempt++ {
		vectors, err := c.embedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !mrcerrors.IsRetryableEmbedding(err) || attempt == c.retry.MaxRetries-1 {
			break
		}
		sleep := backoffWithJitter(c.retry.InitialBackoff, attempt, c.retry.Multiplier, c.retry.MaxBackoff)
		c.logger.Warn("embedding.retry",
			"attempt", attempt+1,
			"sleep_ms", sleep.Milliseconds(),
			"batch_size", len(batch),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, mrcerrors.NewEmbeddingError(false, ctx.Err())
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

// embedRequest is the request body of the /embeddings endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response body of the /embeddings endpoint.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: batch})
	if err != nil {
		return nil, mrcerrors.NewEmbeddingError(false, fmt.Errorf("marshal request: %w", err))
	}

	url := strings.TrimSuffix(c.cfg.APIURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, mrcerrors.NewEmbeddingError(false, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mrcerrors.NewEmbeddingError(true, fmt.Errorf("http request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mrcerrors.NewEmbeddingError(true, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, mrcerrors.NewEmbeddingError(retryable,
			fmt.Errorf("embedding API status %d: %s", resp.StatusCode, truncateBody(raw)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, mrcerrors.NewEmbeddingError(true, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return nil, mrcerrors.NewEmbeddingError(true, fmt.Errorf("embedding API error: %s", parsed.Error.Message))
	}
	if len(parsed.Data) != len(batch) {
		return nil, mrcerrors.NewEmbeddingError(true,
			fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(batch)))
	}

	// The API may return items out of order; restore input order by index.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

// backoffWithJitter computes an exponential backoff with up to 20% random
// jitter, capped at maxBackoff.
func backoffWithJitter(base time.Duration, attempt int, mult float64, maxBackoff time.Duration) time.Duration {
	d := float64(base)
	for i := 0; i < attempt; i++ {
		d *= mult
	}
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	jitter := 1.0 + 0.2*(rand.Float64()*2-1)
	return time.Duration(d * jitter)
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
