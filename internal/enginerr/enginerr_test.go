package enginerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsRetryabilityFromCode(t *testing.T) {
	transient := New(CodeVenueTransient, "rpc timeout")
	assert.True(t, transient.Retryable)

	permanent := New(CodeVenuePermanent, "quote rejected")
	assert.False(t, permanent.Retryable)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(CodeVenueTransient, "venue unreachable", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestWithRetryable_DoesNotMutateOriginal(t *testing.T) {
	original := New(CodeVenueTransient, "rpc timeout")
	downgraded := original.WithRetryable(false)

	assert.True(t, original.Retryable)
	assert.False(t, downgraded.Retryable)
}

func TestCodeOf_ReturnsInternalForUntaggedErrors(t *testing.T) {
	tagged := New(CodeNoQuotes, "empty_quote_set")
	wrapped := errors.New("outer: " + tagged.Error())

	assert.Equal(t, CodeNoQuotes, CodeOf(tagged))
	assert.Equal(t, CodeInternal, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeVenueTransient, "x")))
	assert.False(t, IsRetryable(New(CodeSwapRejected, "x")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}
