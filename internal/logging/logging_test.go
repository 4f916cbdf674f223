package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	require.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestNewContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info").With("correlationId", "corr-1")
	ctx := NewContext(context.Background(), l)

	FromContext(ctx).Info("hello")
	require.Contains(t, buf.String(), `"correlationId":"corr-1"`)
	require.Contains(t, buf.String(), `"msg":"hello"`)

	FromContext(ctx).Debug("hidden")
	require.NotContains(t, buf.String(), "hidden")
}
