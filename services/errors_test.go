package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeConfig, "agent not found", baseErr)

	assert.Equal(t, ErrorTypeConfig, domainErr.Type)
	assert.Equal(t, "agent not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeAllProvidersFailed,
				Message: "tried [claude]",
				Err:     errors.New("upstream 500"),
			},
			wantMsg: "all_providers_failed: tried [claude] (upstream 500)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeCredential,
				Message: "set CLAUDE_API_KEY",
			},
			wantMsg: "credential: set CLAUDE_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewConfigError("unknown provider %q", "bard"),
			target: ErrConfig,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewCredentialError("claude", "missing"),
			target: ErrConfig,
			want:   false,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("loading: %w", NewLimitExceededError(LimitMonthlyCost, 100.0, 100.0, "cap reached")),
			target: ErrLimitExceeded,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("plain"),
			target: ErrInternal,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeConfig, "bad", nil).WithDetail("agent", "auditor")
	assert.Equal(t, "auditor", err.Details["agent"])

	empty := &DomainError{Type: ErrorTypeConfig}
	empty.WithDetail("k", 1)
	assert.Equal(t, 1, empty.Details["k"])
}

func TestNewLimitExceededError(t *testing.T) {
	err := NewLimitExceededError(LimitRequestsPerDay, 5, 5, "daily request limit reached")

	assert.True(t, IsLimitExceededError(err))
	details := GetErrorDetails(err)
	assert.Equal(t, LimitRequestsPerDay, details["limit"])
	assert.Equal(t, 5, details["current"])
	assert.Equal(t, 5, details["max"])
}

func TestNewAllProvidersFailedError(t *testing.T) {
	last := errors.New("connection refused")
	err := NewAllProvidersFailedError([]string{"claude", "chatgpt"}, last)

	assert.True(t, IsAllProvidersFailedError(err))
	assert.ErrorIs(t, err, last)
	assert.Equal(t, []string{"claude", "chatgpt"}, GetErrorDetails(err)["providers"])
}

func TestErrorTypeCheckers(t *testing.T) {
	checkers := map[ErrorType]func(error) bool{
		ErrorTypeConfig:             IsConfigError,
		ErrorTypeCredential:         IsCredentialError,
		ErrorTypeLimitExceeded:      IsLimitExceededError,
		ErrorTypeProvider:           IsProviderError,
		ErrorTypeAllProvidersFailed: IsAllProvidersFailedError,
		ErrorTypeInternal:           IsInternalError,
	}

	for errType, check := range checkers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "x", nil)
			assert.True(t, check(err))
			assert.False(t, check(errors.New("plain")))

			for other, otherCheck := range checkers {
				if other != errType {
					assert.False(t, otherCheck(err), "%s matched %s", errType, other)
				}
			}
		})
	}
}

func TestIsOperatorError(t *testing.T) {
	assert.True(t, IsOperatorError(NewConfigError("x")))
	assert.True(t, IsOperatorError(NewCredentialError("grok", "x")))
	assert.False(t, IsOperatorError(NewLimitExceededError(LimitMonthlyCost, 1, 1, "x")))
	assert.False(t, IsOperatorError(nil))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeCredential, GetErrorType(NewCredentialError("claude", "x")))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewCredentialError("claude", "missing")
	require.NotNil(t, GetErrorDetails(err))
	assert.Equal(t, "claude", GetErrorDetails(err)["provider"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("disk full")

	internal := WrapInternal("write usage log", base)
	assert.True(t, IsInternalError(internal))
	assert.ErrorIs(t, internal, base)

	cfg := WrapConfig("parse agency document", base)
	assert.True(t, IsConfigError(cfg))

	generic := WrapError(ErrorTypeProvider, "upstream", base)
	assert.True(t, IsProviderError(generic))
}
