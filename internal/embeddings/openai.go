package embeddings

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codegraphhq/codegraph/internal/errors"
)

const defaultOpenAIModel = "text-embedding-3-small"

// openaiDimensions maps known models to their native vector size.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type openAIProvider struct {
	client *openai.Client
	model  string
	dims   int
	// override is sent with each request when the caller shrank the
	// vectors. Only the text-embedding-3 family honours it.
	override int
}

func newOpenAIProvider(cfg Config) (*openAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Config("openai api key is required; set OPENAI_API_KEY or run `cgraph configure`")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	dims := cfg.Dimensions
	override := cfg.Dimensions
	if dims <= 0 {
		dims = openaiDimensions[model]
		override = 0
		if dims == 0 {
			return nil, errors.Configf("unknown openai embedding model %q; set dimensions explicitly", model)
		}
	}
	return &openAIProvider{
		client:   openai.NewClient(cfg.APIKey),
		model:    model,
		dims:     dims,
		override: override,
	}, nil
}

func (p *openAIProvider) Name() string    { return ProviderOpenAI }
func (p *openAIProvider) Model() string   { return p.model }
func (p *openAIProvider) Dimensions() int { return p.dims }

func (p *openAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	if p.override > 0 {
		req.Dimensions = p.override
	}
	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
