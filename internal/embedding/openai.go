// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package embedding

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder produces embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder against the OpenAI API. The model
// is asked to truncate its output to the configured dimensions so all
// backends share one vector size.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dims,
	}, nil
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: openai.Int(int64(o.dimensions)),
	})
	if err != nil {
		return nil, kerr.Wrapf(err, kerr.CodeEmbeddingCallFailure, "embedding request to %s", o.model)
	}
	if len(resp.Data) == 0 {
		return nil, kerr.Errorf(kerr.CodeEmbeddingCallFailure, "embedding response from %s contained no data", o.model)
	}

	raw := resp.Data[0].Embedding
	if len(raw) != o.dimensions {
		return nil, kerr.Errorf(kerr.CodeEmbeddingDimsInvalid,
			"model %s returned %d dimensions, expected %d", o.model, len(raw), o.dimensions)
	}

	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding vector size.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dimensions
}

func (o *OpenAIEmbedder) Close() error {
	return nil
}
