package pkglog

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoColorHandler(buf *bytes.Buffer) *Handler {
	h := NewHandler(buf, slog.LevelDebug)
	h.colorMode = ColorModeNone
	return h
}

func TestHandleNoColorUsesLevelPrefix(t *testing.T) {
	var buf bytes.Buffer
	h := newNoColorHandler(&buf)

	logger := slog.New(h)
	logger.Warn("disk almost full")

	assert.Equal(t, "warning: disk almost full\n", buf.String())
}

func TestHandleNoColorFormatsAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newNoColorHandler(&buf)

	logger := slog.New(h)
	logger.Info("install complete", "packages", 12, "name", "acme/util")

	assert.Equal(t, "info: install complete packages=12 name=\"acme/util\"\n", buf.String())
}

func TestHandleFormatsErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newNoColorHandler(&buf)

	logger := slog.New(h)
	logger.Error("command failed", "error", errors.New("boom"))

	assert.Equal(t, "error: command failed error=\"boom\"\n", buf.String())
}

func TestWithGroupPrefixesAttrKeys(t *testing.T) {
	var buf bytes.Buffer
	h := newNoColorHandler(&buf)

	logger := slog.New(h).WithGroup("download")
	logger.Debug("fetched archive", "bytes", 1024)

	assert.Equal(t, "debug: fetched archive download.bytes=1024\n", buf.String())
}

func TestWithAttrsAccumulatesHandlerLevelAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newNoColorHandler(&buf)

	logger := slog.New(h).With("index", "default")
	logger.Info("resolving dependencies")

	assert.Equal(t, "info: resolving dependencies index=\"default\"\n", buf.String())
}

func TestEnabledRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, slog.LevelInfo)

	require.False(t, h.Enabled(nil, slog.LevelDebug))
	require.True(t, h.Enabled(nil, slog.LevelInfo))
	require.True(t, h.Enabled(nil, slog.LevelWarn))
}
