package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"nil", nil, 0},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", fmt.Errorf("search: %w", context.Canceled), ErrCodeTimeout},
		{"tool not found", ErrToolNotFound, ErrCodeMethodNotFound},
		{"invalid params", ErrInvalidParams, ErrCodeInvalidParams},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
		{"locked", amerrors.IndexLockedError("/idx", nil), ErrCodeIndexLocked},
		{"corrupt", amerrors.CorruptIndexError("count mismatch", nil), ErrCodeIndexUnavailable},
		{"unavailable", amerrors.New(amerrors.ErrCodeIndexUnavailable, "closed", nil), ErrCodeIndexUnavailable},
		{"embedding", amerrors.New(amerrors.ErrCodeEmbeddingFailed, "provider down", nil), ErrCodeEmbeddingFailed},
		{"transient", amerrors.TransientProviderError("timeout", nil), ErrCodeTimeout},
		{"empty query", amerrors.New(amerrors.ErrCodeQueryEmpty, "search query is empty", nil), ErrCodeInvalidParams},
		{"wrapped aman", fmt.Errorf("outer: %w", amerrors.IndexLockedError("/idx", nil)), ErrCodeIndexLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantCode, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	got := MapError(amerrors.IndexLockedError("/idx", nil))

	assert.Contains(t, got.Message, "index is locked")
	assert.Contains(t, got.Message, "retry")
}

func TestMCPError_Error(t *testing.T) {
	err := NewMethodNotFoundError("nope")

	assert.Equal(t, "MCP error -32601: Tool 'nope' not found.", err.Error())
}
