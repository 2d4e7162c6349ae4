package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) {
	t.Cleanup(func() {
		SetFormat("text")
		SetOutput(os.Stdout)
		SetLevel("info")
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFanoutAndLevel(t *testing.T) {
	reset(t)
	var a, b bytes.Buffer
	SetOutput(&a, &b)
	SetLevel("warn")

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	for _, buf := range []*bytes.Buffer{&a, &b} {
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown 2")
	}
}

func TestJSONFormatWithComponent(t *testing.T) {
	reset(t)
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")

	With("feedback").Info("retrain started", "agent", "news")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "feedback", rec["component"])
	assert.Equal(t, "news", rec["agent"])
}

func TestInfoBlockSkipsBlankLines(t *testing.T) {
	reset(t)
	var buf bytes.Buffer
	SetOutput(&buf)

	InfoBlock("\nfirst\n\nsecond\n")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}
