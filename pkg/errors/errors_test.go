package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrHashMismatch, "content hash did not match")
	assert.Equal(t, ErrHashMismatch, err.Code)
	assert.Equal(t, "[HASH_MISMATCH] content hash did not match", err.Error())
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("open /cas/objects/ab: no such file")
	err := Wrap(inner, ErrContentNotFound, "content missing")
	require.NotNil(t, err)
	assert.Equal(t, ErrContentNotFound, err.Code)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "CONTENT_NOT_FOUND")

	assert.Nil(t, Wrap(nil, ErrInternal, "never created"))
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrapf(errors.New("boom"), ErrCrossVolume, "hardlink across volumes")
	assert.True(t, errors.Is(err, New(ErrCrossVolume, "")))
	assert.False(t, errors.Is(err, New(ErrAccessDenied, "")))
}

func TestIsErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"direct match", New(ErrInsufficientSpace, "disk full"), ErrInsufficientSpace, true},
		{"wrapped match", fmt.Errorf("prepare: %w", New(ErrHashMismatch, "bad hash")), ErrHashMismatch, true},
		{"no match", New(ErrNotFound, "missing"), ErrHashMismatch, false},
		{"plain error", errors.New("plain"), ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsErrorCode(tt.err, tt.code))
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrAccessDenied, GetErrorCode(New(ErrAccessDenied, "denied")))
	assert.Equal(t, ErrUnknown, GetErrorCode(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrHashMismatch, "bad hash").
		WithDetail("expected", "aa11").
		WithDetail("actual", "bb22")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "aa11", details["expected"])
	assert.Equal(t, "bb22", details["actual"])
}
