// Package config loads the viewer configuration file.
package config

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Renderer backends.
const (
	RendererOpenGL   = "opengl"
	RendererWebGPU   = "webgpu"
	RendererSoftware = "software"
)

// Config holds the settings shared by the viewer shells.
type Config struct {
	Title    string `yaml:"title"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Renderer string `yaml:"renderer"`
	Strict   bool   `yaml:"strict"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Title:    "STL Viewer",
		Width:    800,
		Height:   600,
		Renderer: RendererOpenGL,
		LogLevel: "info",
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return c, nil
}

// Decode reads YAML from r on top of Default and validates the result.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for values the shells cannot use.
func (c *Config) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("window size must be positive, got %vx%v", c.Width, c.Height)
	}
	switch c.Renderer {
	case RendererOpenGL, RendererWebGPU, RendererSoftware:
	default:
		return fmt.Errorf("unknown renderer %q", c.Renderer)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger builds a console logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	return cfg.Build()
}
