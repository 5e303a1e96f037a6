// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := kerr.New(
		kerr.CodeMemoryCreateInvalidInput,
		"emotion intensity out of range",
		kerr.FieldMemoryID("mem-123"),
		kerr.Field("intensity", 1.7),
	)

	require.Error(t, err)
	assert.Equal(t, kerr.CodeMemoryCreateInvalidInput, kerr.CodeOf(err))
	assert.True(t, kerr.HasCode(err, kerr.CodeMemoryCreateInvalidInput))

	fields := kerr.FieldsOf(err)
	assert.Equal(t, "mem-123", fields["memory_id"])
	assert.Equal(t, 1.7, fields["intensity"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := kerr.Errorf(kerr.CodeStoreBackendUnsupported, "unsupported storage backend %q", "etcd")
	require.Error(t, err)
	assert.Equal(t, kerr.CodeStoreBackendUnsupported, kerr.CodeOf(err))
	assert.Contains(t, err.Error(), `unsupported storage backend "etcd"`)
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := kerr.Errorf(kerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, kerr.CodeStoreDatabaseFailure, kerr.CodeOf(err))
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := kerr.Wrap(
		root,
		kerr.CodeMemoryGetNotFound,
		"loading memory",
		kerr.FieldMemoryID("mem-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, kerr.CodeMemoryGetNotFound, kerr.CodeOf(err))
	assert.True(t, kerr.IsNotFound(err))
	assert.Equal(t, "mem-42", kerr.FieldsOf(err)["memory_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, kerr.Wrap(nil, kerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, kerr.Wrapf(nil, kerr.CodeServerInternalFailure, "ignored %s", "arg"))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := kerr.New(kerr.CodeSessionGetNotFound, "no such session")
	withCtx := kerr.With(base, kerr.FieldSessionID("sess-7"))

	require.Error(t, withCtx)
	assert.Equal(t, kerr.CodeSessionGetNotFound, kerr.CodeOf(withCtx))
	assert.Equal(t, "sess-7", kerr.FieldsOf(withCtx)["session_id"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	plain := stderrors.New("something broke")
	enriched := kerr.With(plain, kerr.FieldBackend("sqlite"))

	require.Error(t, enriched)
	assert.Equal(t, kerr.CodeServerInternalFailure, kerr.CodeOf(enriched))
	assert.Equal(t, "sqlite", kerr.FieldsOf(enriched)["backend"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, kerr.Code(""), kerr.CodeOf(nil))
	assert.Equal(t, kerr.Code(""), kerr.CodeOf(stderrors.New("plain")))

	inner := kerr.New(kerr.CodeStoreDatabaseFailure, "db")
	outer := kerr.Wrap(inner, kerr.CodeServerInternalFailure, "handler")
	// oops.AsOops walks to the deepest oops error, so CodeOf returns the innermost code.
	assert.Equal(t, kerr.CodeStoreDatabaseFailure, kerr.CodeOf(outer))
}

func TestFieldsOfNilAndPlain(t *testing.T) {
	assert.Nil(t, kerr.FieldsOf(nil))
	assert.Nil(t, kerr.FieldsOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := kerr.New(kerr.CodeStoreDatabaseFailure, "boom",
		kerr.Field("", "should-be-dropped"),
		kerr.FieldInterface("vscode"),
	)
	fields := kerr.FieldsOf(err)
	assert.Equal(t, "vscode", fields["interface"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := kerr.Wrap(mid, kerr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   kerr.Code
		status int
		check  func(error) bool
	}{
		{name: "memory not found", code: kerr.CodeMemoryGetNotFound, status: 404, check: kerr.IsNotFound},
		{name: "session not found", code: kerr.CodeSessionGetNotFound, status: 404, check: kerr.IsNotFound},
		{name: "server entity not found", code: kerr.CodeServerEntityNotFound, status: 404, check: kerr.IsNotFound},
		{name: "create invalid input", code: kerr.CodeMemoryCreateInvalidInput, status: 400, check: kerr.IsInvalidInput},
		{name: "config invalid value", code: kerr.CodeConfigValidateInvalidValue, status: 400, check: kerr.IsInvalidInput},
		{name: "store invalid input", code: kerr.CodeStoreInvalidInput, status: 400, check: kerr.IsInvalidInput},
		{name: "embedding not ready", code: kerr.CodeEmbeddingNotReady, status: 503, check: kerr.IsEmbeddingUnavailable},
		{name: "embedding call failure", code: kerr.CodeEmbeddingCallFailure, status: 503, check: kerr.IsEmbeddingUnavailable},
		{name: "relational unavailable", code: kerr.CodeStoreRelationalUnavailable, status: 503, check: kerr.IsUnavailable},
		{name: "vector unavailable", code: kerr.CodeStoreVectorUnavailable, status: 503, check: kerr.IsUnavailable},
		{name: "internal", code: kerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !kerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := kerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, kerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestEmbeddingClassifierRejectsNonProviderCodes(t *testing.T) {
	// Dimension config problems are invalid input, not provider unavailability.
	err := kerr.New(kerr.CodeEmbeddingDimsInvalid, "dims")
	assert.False(t, kerr.IsEmbeddingUnavailable(err))
	assert.True(t, kerr.IsInvalidInput(err))

	// An unknown provider name is a lookup failure, not an outage.
	err = kerr.New(kerr.CodeEmbeddingProviderUnknown, "no such provider")
	assert.False(t, kerr.IsEmbeddingUnavailable(err))
	assert.True(t, kerr.IsNotFound(err))
}

func TestClassificationOnNilAndPlainError(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain")} {
		assert.False(t, kerr.IsNotFound(err))
		assert.False(t, kerr.IsInvalidInput(err))
		assert.False(t, kerr.IsUnavailable(err))
		assert.False(t, kerr.IsEmbeddingUnavailable(err))
		assert.False(t, kerr.IsTimeout(err))
	}
}

func TestHTTPStatusFallbacks(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, kerr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, kerr.HTTPStatus(stderrors.New("oops")))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := kerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, kerr.CodeServerInternalFailure, kerr.CodeOf(joined))
}
