package ledgererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(InvalidArgument, "amount %d must be positive", -5)
	require.EqualError(t, err, "invalid_argument: amount -5 must be positive")
	assert.Equal(t, InvalidArgument, err.Code)
	assert.Nil(t, err.Cause)
}

func TestWrapKeepsCauseAndUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Internal, cause, "failed to post entry")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCodeOfUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := Newf(ResourceBusy, "row locked")
	wrapped := fmt.Errorf("posting failed: %w", inner)

	assert.Equal(t, ResourceBusy, CodeOf(wrapped))
	assert.True(t, IsResourceBusy(wrapped))
}

func TestCodeOfNonLedgerErrorIsEmpty(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain error")))
	assert.False(t, IsInternal(errors.New("plain error")))
}

func TestIsHelpersMatchTheirOwnCodeOnly(t *testing.T) {
	err := Newf(LimitExceeded, "daily limit exceeded")
	assert.True(t, IsLimitExceeded(err))
	assert.False(t, IsConflict(err))
	assert.False(t, IsHoldExpired(err))
}
