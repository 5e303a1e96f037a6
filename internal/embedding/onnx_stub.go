// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

//go:build !onnx

package embedding

import (
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// newONNXEmbedder reports that onnx support is not compiled in. The real
// implementation lives behind the onnx build tag because it links against
// the onnxruntime shared library.
func newONNXEmbedder(Config) (Embedder, error) {
	return nil, kerr.New(kerr.CodeEmbeddingNotReady, "onnx provider requires building with the onnx tag")
}
