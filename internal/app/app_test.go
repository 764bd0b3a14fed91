package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/bissquit/course-sync/internal/monitor"
	"github.com/stretchr/testify/assert"
)

func TestReplaceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: replaceLevel}))

	logger.Log(context.Background(), monitor.LevelCritical, "dropped")
	assert.Contains(t, buf.String(), "level=CRITICAL")

	buf.Reset()
	logger.Error("failed")
	assert.Contains(t, buf.String(), "level=ERROR")
}
