package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries int           // maximum retry attempts after the first call
	RetryDelay time.Duration // initial delay between retries
	MaxDelay   time.Duration // caps the exponential backoff
	Timeout    time.Duration // per-attempt timeout
}

// DefaultRetryConfig returns the defaults used for index builds and request
// handling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryEmbedder wraps an EmbeddingClient with per-attempt timeouts and
// bounded exponential backoff. Embedding calls are idempotent, so repeating
// one on transient failure is always safe.
type RetryEmbedder struct {
	inner  EmbeddingClient
	config RetryConfig
}

func NewRetryEmbedder(inner EmbeddingClient, config RetryConfig) *RetryEmbedder {
	if config.Timeout == 0 {
		config.Timeout = DefaultRetryConfig().Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultRetryConfig().RetryDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &RetryEmbedder{inner: inner, config: config}
}

func (r *RetryEmbedder) Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error) {
	var resp *EmbeddingResponse
	err := withRetry(ctx, r.config, func(attemptCtx context.Context) error {
		var err error
		resp, err = r.inner.Embed(attemptCtx, model, input)
		return err
	})
	return resp, err
}

func (r *RetryEmbedder) EmbedBatch(ctx context.Context, model string, inputs []string) ([]EmbeddingResponse, error) {
	var resp []EmbeddingResponse
	err := withRetry(ctx, r.config, func(attemptCtx context.Context) error {
		var err error
		resp, err = r.inner.EmbedBatch(attemptCtx, model, inputs)
		return err
	})
	return resp, err
}

// RetryGenerator wraps a generation Client the same way.
type RetryGenerator struct {
	inner  Client
	config RetryConfig
}

func NewRetryGenerator(inner Client, config RetryConfig) *RetryGenerator {
	if config.Timeout == 0 {
		config.Timeout = DefaultRetryConfig().Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultRetryConfig().RetryDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &RetryGenerator{inner: inner, config: config}
}

func (r *RetryGenerator) Chat(ctx context.Context, model string, system, user string) (*LLMResponse, error) {
	var resp *LLMResponse
	err := withRetry(ctx, r.config, func(attemptCtx context.Context) error {
		var err error
		resp, err = r.inner.Chat(attemptCtx, model, system, user)
		return err
	})
	return resp, err
}

func withRetry(ctx context.Context, cfg RetryConfig, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg, attempt)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// backoff returns the delay before the given attempt: delay * 2^(attempt-1),
// capped at MaxDelay.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return delay
}

// isRetryable reports whether an error is worth retrying. Rate limits,
// server errors and timeouts are transient; client errors are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors default to retry; model calls are idempotent.
	return true
}
