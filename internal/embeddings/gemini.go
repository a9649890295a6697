package embeddings

import (
	"context"

	"google.golang.org/genai"

	"github.com/codegraphhq/codegraph/internal/errors"
)

const defaultGeminiModel = "gemini-embedding-001"

var geminiDimensions = map[string]int{
	"gemini-embedding-001": 3072,
	"text-embedding-004":   768,
}

type geminiProvider struct {
	client   *genai.Client
	model    string
	dims     int
	override int
}

func newGeminiProvider(ctx context.Context, cfg Config) (*geminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Config("gemini api key is required; set GEMINI_API_KEY or run `cgraph configure`")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	dims := cfg.Dimensions
	override := cfg.Dimensions
	if dims <= 0 {
		dims = geminiDimensions[model]
		override = 0
		if dims == 0 {
			return nil, errors.Configf("unknown gemini embedding model %q; set dimensions explicitly", model)
		}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Connection(err, "failed to create gemini client")
	}
	return &geminiProvider{
		client:   client,
		model:    model,
		dims:     dims,
		override: override,
	}, nil
}

func (p *geminiProvider) Name() string    { return ProviderGemini }
func (p *geminiProvider) Model() string   { return p.model }
func (p *geminiProvider) Dimensions() int { return p.dims }

func (p *geminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.Text(text)...)
	}
	config := &genai.EmbedContentConfig{}
	if p.override > 0 {
		config.OutputDimensionality = ptrInt32(int32(p.override))
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, embedding := range resp.Embeddings {
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

func ptrInt32(v int32) *int32 {
	return &v
}
