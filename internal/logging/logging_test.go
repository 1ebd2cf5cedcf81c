package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevelRecognizesAllNames(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
}

func TestParseLevelFallsBackToWarnForUnknown(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("nonsense"))
}

func TestNormalizeLevelNameCollapsesWarning(t *testing.T) {
	require.Equal(t, "WARN", normalizeLevelName(slog.LevelWarn))
	require.Equal(t, "DEBUG", normalizeLevelName(slog.LevelDebug))
}
