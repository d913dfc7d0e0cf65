package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiErr(status int, msg string) error {
	return &openai.APIError{HTTPStatusCode: status, Message: msg}
}

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  LLMErrorKind
		retryable bool
	}{
		{"unauthorized", apiErr(401, "bad key"), LLMErrAuth, false},
		{"rate limited", apiErr(429, "slow down"), LLMErrRateLimited, true},
		{"server error", apiErr(503, "overloaded"), LLMErrUpstreamServer, true},
		{"bad request", apiErr(400, "invalid payload"), LLMErrBadRequest, false},
		{"context overflow", apiErr(400, "this model's maximum context length is 8192 tokens"), LLMErrContextOverflow, false},
		{"deadline", context.DeadlineExceeded, LLMErrUpstreamTimeout, true},
		{"generic timeout text", fmt.Errorf("request timeout while dialing"), LLMErrUpstreamTimeout, true},
		{"unknown", fmt.Errorf("connection reset"), LLMErrUpstreamServer, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := classifyLLMError(tt.err)
			require.NotNil(t, le)
			assert.Equal(t, tt.wantKind, le.Kind)
			assert.Equal(t, tt.retryable, le.Retryable())
		})
	}
}

func TestClassifyLLMErrorNil(t *testing.T) {
	assert.Nil(t, classifyLLMError(nil))
}

func TestClassifyLLMErrorPassthrough(t *testing.T) {
	orig := &LLMError{Kind: LLMErrRateLimited, cause: fmt.Errorf("429")}
	wrapped := fmt.Errorf("outer: %w", orig)
	got := classifyLLMError(wrapped)
	assert.Equal(t, LLMErrRateLimited, got.Kind)
}

func TestLLMErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	le := &LLMError{Kind: LLMErrUpstreamServer, cause: cause}
	assert.True(t, errors.Is(le, cause))
}
