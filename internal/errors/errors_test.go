package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", ValidationError("bad input"), http.StatusBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound},
		{"conflict", ConflictError(CodeInvalidState, "illegal"), http.StatusConflict},
		{"key reused", KeyReusedError(), http.StatusConflict},
		{"gone", GoneError("expired"), http.StatusGone},
		{"internal", InternalError("boom", nil), http.StatusInternalServerError},
		{"external", ExternalError("backend down", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_MessageFormat(t *testing.T) {
	err := ConflictError(CodeNoRetriesLeft, "no retries left")
	assert.Equal(t, "NO_RETRIES_LEFT: no retries left", err.Error())

	wrapped := InternalError("storage failed", fmt.Errorf("disk full"))
	assert.Contains(t, wrapped.Error(), "disk full")
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ExternalError("camera unreachable", cause)
	assert.ErrorIs(t, err, cause)
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("template tpl_009 is not installed").
		WithContext("indexFile", "data/index.json").
		WithContext("installedCount", 3)

	require.NotNil(t, err.Context)
	assert.Equal(t, "data/index.json", err.Context["indexFile"])
	assert.Equal(t, 3, err.Context["installedCount"])
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ConflictError(CodeInvalidState, "nope")))
	assert.True(t, IsConflict(KeyReusedError()))
	assert.False(t, IsConflict(NotFoundError("missing")))
	assert.False(t, IsConflict(fmt.Errorf("plain error")))
	assert.False(t, IsConflict(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundError("missing")))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NotFoundError("missing"))))
	assert.False(t, IsNotFound(ConflictError(CodeInvalidState, "nope")))
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("structured error passes through", func(t *testing.T) {
		orig := GoneError("token expired")
		assert.Same(t, orig, AsStructuredError(orig))
	})

	t.Run("wrapped structured error is recovered", func(t *testing.T) {
		orig := NotFoundError("missing")
		got := AsStructuredError(fmt.Errorf("handler: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := AsStructuredError(fmt.Errorf("boom"))
		assert.Equal(t, TypeInternal, got.Type)
		assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus())
	})
}

func TestToResponse(t *testing.T) {
	err := ConflictError(CodeInvalidState, "action not allowed in current state: IDLE").
		WithContext("operation", "capture")

	resp := err.ToResponse()
	assert.Equal(t, "action not allowed in current state: IDLE", resp.Error)
	assert.Equal(t, CodeInvalidState, resp.Code)
	assert.Equal(t, TypeConflict, resp.Type)
	assert.Equal(t, "capture", resp.Context["operation"])
}
