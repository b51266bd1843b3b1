package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader("width: 1024\nrenderer: software\nstrict: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 1024, c.Width)
	assert.Equal(t, 600, c.Height)
	assert.Equal(t, RendererSoftware, c.Renderer)
	assert.True(t, c.Strict)
	assert.Equal(t, "info", c.LogLevel)
}

func TestDecodeEmpty(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown renderer", "renderer: vulkan\n"},
		{"zero height", "height: 0\n"},
		{"bad level", "log_level: loud\n"},
		{"unknown field", "colour: red\n"},
		{"not yaml", "width: [1, 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stlview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Parts\nlog_level: debug\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Parts", c.Title)

	logger, err := c.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
