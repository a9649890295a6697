// Package embeddings turns chunk text into dense vectors. Providers share
// a batched contract; the constructor layers rate limiting, per-request
// timeouts and retry over the raw API clients so callers never deal with
// transport flakiness.
package embeddings

import (
	"context"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	// DefaultRequestTimeout bounds one provider round-trip.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
)

// Provider generates embeddings in batches. Implementations return
// exactly one vector per input text, in input order.
type Provider interface {
	Name() string
	Model() string
	Dimensions() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and parameterises a provider. Zero values fall back to
// provider defaults.
type Config struct {
	Provider string
	Model    string
	// Dimensions overrides the model's native dimensionality where the
	// model supports it. Zero keeps the native size.
	Dimensions int
	APIKey     string
	// RateLimit caps requests per second. Zero disables client-side
	// throttling.
	RateLimit float64
	// RequestTimeout bounds a single API call.
	RequestTimeout time.Duration
	// MaxRetries caps retries after the first attempt.
	MaxRetries int
}

// New builds the configured provider wrapped with rate limiting, timeout
// and retry. The context is used only for client construction.
func New(ctx context.Context, cfg Config) (Provider, error) {
	var (
		raw Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		raw, err = newOpenAIProvider(cfg)
	case ProviderGemini:
		raw, err = newGeminiProvider(ctx, cfg)
	default:
		return nil, errors.Validationf("unknown embedding provider %q (supported: openai, gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return wrap(raw, cfg), nil
}
