package embeddings

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/retry"
)

// limitedProvider wraps a raw provider with the shared operational
// policy. Every attempt re-acquires a rate token and gets a fresh
// timeout, so retries never ride a stale deadline.
type limitedProvider struct {
	raw     Provider
	limiter *rate.Limiter
	timeout time.Duration
	retrier *retry.Retrier
	log     *slog.Logger
}

func wrap(raw Provider, cfg Config) *limitedProvider {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &limitedProvider{
		raw:     raw,
		limiter: limiter,
		timeout: timeout,
		retrier: retry.New(&retry.Config{
			MaxAttempts:  retries + 1,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.5,
			RetryIf:      errors.IsRetryable,
		}),
		log: logging.ForComponent("embeddings"),
	}
}

func (p *limitedProvider) Name() string    { return p.raw.Name() }
func (p *limitedProvider) Model() string   { return p.raw.Model() }
func (p *limitedProvider) Dimensions() int { return p.raw.Dimensions() }

func (p *limitedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, errors.Validationf("embedding input %d is empty", i)
		}
	}

	var vectors [][]float32
	err := p.retrier.Do(ctx, func(ctx context.Context) error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return errors.Operation(err, "rate limiter wait aborted", false)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		out, err := p.raw.EmbedBatch(callCtx, texts)
		if err != nil {
			classified := classifyProviderError(p.raw.Name(), err, time.Since(start))
			if errors.IsRetryable(classified) {
				p.log.Warn("embedding request failed, will retry",
					"provider", p.raw.Name(), "error", classified)
			}
			return classified
		}
		if len(out) != len(texts) {
			return errors.Operation(nil,
				fmt.Sprintf("%s returned %d embeddings for %d texts", p.raw.Name(), len(out), len(texts)),
				false)
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// classifyProviderError maps raw API failures onto the typed error set.
// Retryable: HTTP 429, HTTP >= 500, refused/reset connections, timeouts.
// Everything else surfaces immediately.
func classifyProviderError(provider string, err error, elapsed time.Duration) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(provider+" embedding request timed out", elapsed.Milliseconds())
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Operation(err, provider+" embedding request cancelled", false)
	}
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
		return errors.Operation(err,
			fmt.Sprintf("%s embedding request failed (status %d)", provider, apiErr.HTTPStatusCode),
			retryable)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.Timeout(provider+" embedding request timed out", elapsed.Milliseconds())
		}
		return errors.Connection(err, provider+" connection failed")
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset"):
		return errors.Connection(err, provider+" connection failed")
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource exhausted"):
		return errors.Operation(err, provider+" embedding request throttled", true)
	case strings.Contains(msg, "internal server") || strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "unavailable") || strings.Contains(msg, "overloaded"):
		return errors.Operation(err, provider+" embedding request failed upstream", true)
	}
	return errors.Operation(err, provider+" embedding request failed", false)
}
