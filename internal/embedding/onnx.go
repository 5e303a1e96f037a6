// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// maxSequenceLength is the token window of the MiniLM family.
const maxSequenceLength = 128

// onnxEmbedder runs a local sentence-transformer ONNX model. Built only
// with the onnx tag because it needs the onnxruntime shared library at
// runtime.
type onnxEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
}

func newONNXEmbedder(cfg Config) (Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, kerr.New(kerr.CodeEmbeddingNotReady, "onnx provider requires a model path")
	}
	if cfg.TokenizerPath == "" {
		return nil, kerr.New(kerr.CodeEmbeddingNotReady, "onnx provider requires a tokenizer path")
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingNotReady, "initialising onnx runtime")
	}

	tokenizer, err := loadWordPieceTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingNotReady, "loading tokenizer")
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingNotReady, "creating onnx session")
	}

	return &onnxEmbedder{session: session, tokenizer: tokenizer, dimensions: dims}, nil
}

func (e *onnxEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := e.tokenizer.tokenize(text)

	inputIDs := make([]int64, maxSequenceLength)
	attentionMask := make([]int64, maxSequenceLength)
	tokenTypeIDs := make([]int64, maxSequenceLength)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxSequenceLength-2 {
		tokenLen = maxSequenceLength - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxSequenceLength))
	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "creating input_ids tensor")
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "creating attention_mask tensor")
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "creating token_type_ids tensor")
	}
	defer tokenTypeIDsTensor.Destroy()

	outputs := []ort.Value{nil}
	err = e.session.Run([]ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}, outputs)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "running onnx inference")
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, kerr.New(kerr.CodeEmbeddingCallFailure, "unexpected onnx output tensor type")
	}

	return e.pool(tensor, attentionMask)
}

// pool reduces the model output to a single vector. A 2-D output is already
// pooled; a 3-D output gets attention-masked mean pooling.
func (e *onnxEmbedder) pool(tensor *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, kerr.Errorf(kerr.CodeEmbeddingDimsInvalid,
				"model produced %d values, expected %d", len(data), e.dimensions)
		}
		embedding := make([]float32, e.dimensions)
		copy(embedding, data[:e.dimensions])
		return normalize(embedding), nil

	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dimensions {
			return nil, kerr.Errorf(kerr.CodeEmbeddingDimsInvalid,
				"model hidden size %d, expected %d", hidden, e.dimensions)
		}

		embedding := make([]float32, e.dimensions)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				embedding[j] += data[offset+j]
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
		return normalize(embedding), nil

	default:
		return nil, kerr.Errorf(kerr.CodeEmbeddingCallFailure, "unexpected onnx output shape %v", shape)
	}
}

// Dimensions returns the embedding vector size.
func (e *onnxEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *onnxEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer driven by the
// model's tokenizer.json vocabulary.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, err
	}

	return &wordPieceTokenizer{
		vocab:    tokenizerData.Model.Vocab,
		clsToken: 101, // [CLS]
		sepToken: 102, // [SEP]
		unkToken: 100, // [UNK]
	}, nil
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}

		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}

		for _, sub := range t.splitWordPiece(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// splitWordPiece greedily matches the longest vocabulary prefix, marking
// continuations with the ## prefix.
func (t *wordPieceTokenizer) splitWordPiece(word string) []string {
	var subwords []string
	start := 0

	for start < len(word) {
		end := len(word)
		found := false

		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}

		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}

	return subwords
}
