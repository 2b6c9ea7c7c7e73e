package cgerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndKindString(t *testing.T) {
	err := New(KindBadRequest, "endpoint %d too far", 42)
	assert.Equal(t, KindBadRequest, err.Kind)
	assert.Contains(t, err.Error(), "BadRequest")
	assert.Contains(t, err.Error(), "endpoint 42 too far")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindConflict, cause, "write rejected")

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "boom")
}

func TestErrorsIsAgainstSentinels(t *testing.T) {
	err := New(KindNotFound, "node missing")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestIsHelper(t *testing.T) {
	err := Wrap(KindLocking, errors.New("busy"), "root 7 locked")

	assert.True(t, Is(err, KindLocking))
	assert.False(t, Is(err, KindInternal))
	assert.False(t, Is(errors.New("plain"), KindLocking))
}
