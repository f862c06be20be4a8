package simerr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := New(InvalidAction)
	assert.True(t, errors.Is(err, ErrInvalidAction))
	assert.False(t, errors.Is(err, ErrStateCorruption))

	wrapped := fmt.Errorf("turn 3: %w", Wrap(context.Background(), StateCorruption, "load", errors.New("bad tag")))
	assert.True(t, errors.Is(wrapped, ErrStateCorruption))
	assert.Equal(t, StateCorruption, KindOf(wrapped))
}

func TestWrapHidesCause(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cause := errors.New("cipher: message authentication failed")
	err := Wrap(context.Background(), StateCorruption, "decrypt", cause)

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "authentication")
	assert.False(t, errors.Is(err, cause))
	assert.Nil(t, errors.Unwrap(err))
	assert.Contains(t, buf.String(), "authentication failed")
	assert.Contains(t, buf.String(), "op=decrypt")
}

func TestClassification(t *testing.T) {
	assert.Equal(t, ClassRecoverable, InvalidAction.Classify())
	assert.Equal(t, ClassFatalToAttempt, StateCorruption.Classify())
	assert.Equal(t, ClassFatalToAttempt, SystemFailure.Classify())
	assert.Equal(t, ClassFatalAtStartup, ConfigurationError.Classify())
	assert.Equal(t, "CISOSIM/CORE/INVALID_ACTION", InvalidAction.Code())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, SystemFailure, KindOf(errors.New("disk full")))
}
