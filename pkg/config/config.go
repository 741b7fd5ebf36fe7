// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads frost's YAML configuration file.
//
// Example frost.yaml:
//
//	freeze:
//	  on_update: warn
//	  on_freeze: copy
//	  numeric_buffers: true
//	logging:
//	  level: debug
//	  dir: ~/.frost/logs
//	telemetry:
//	  trace_exporter: stdout
//	  metric_exporter: none
//	store:
//	  dir: ~/.frost/snapshots
//	server:
//	  addr: 127.0.0.1:8420
//	  rate_limit: 50
//	  burst: 100
//
// Every section is optional. Unknown keys are rejected so typos surface
// instead of silently falling back to defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/logging"
	"github.com/AleutianAI/frost/pkg/telemetry"
)

// MaxFileSize caps the configuration file read by Load.
const MaxFileSize = 1 << 20

// ErrInvalid wraps every parse and validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Config is the root of frost.yaml.
type Config struct {
	Freeze    FreezeConfig     `yaml:"freeze"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Store     StoreConfig      `yaml:"store"`
	Server    ServerConfig     `yaml:"server"`
}

// FreezeConfig holds the defaults for every Freeze call a command makes.
type FreezeConfig struct {
	// OnUpdate is the violation mode. The callback mode needs code and
	// cannot be configured here.
	OnUpdate string `yaml:"on_update" validate:"omitempty,oneof=raise exception warn warning ignore nothing"`

	// OnFreeze is the freeze strategy.
	OnFreeze string `yaml:"on_freeze" validate:"omitempty,oneof=copy in-place inplace"`

	// NumericBuffers freezes numeric slices as buffers.
	NumericBuffers bool `yaml:"numeric_buffers"`

	// MaxDepth bounds graph nesting. Zero keeps the engine default.
	MaxDepth int `yaml:"max_depth" validate:"gte=0"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
	Dir   string `yaml:"dir"`
}

// StoreConfig locates the snapshot store used by freeze --store and thaw.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig configures frost serve.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`

	// MaxBodyBytes caps PUT bodies. Zero keeps the server default.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`
}

// DefaultServerAddr is where frost serve listens unless configured.
const DefaultServerAddr = "127.0.0.1:8420"

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Freeze:    FreezeConfig{OnUpdate: freeze.ModeRaise, OnFreeze: freeze.StrategyCopy},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Server:    ServerConfig{Addr: DefaultServerAddr},
	}
}

// Load reads path on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxFileSize {
		return Config{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalid, path, MaxFileSize)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s must satisfy %s %s, got %v", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// FreezeOptions turns the freeze section into engine options. logger, if
// not nil, receives warn-policy violations and debug traces.
func (c Config) FreezeOptions(logger *slog.Logger) []freeze.Option {
	var opts []freeze.Option
	if c.Freeze.OnUpdate != "" {
		opts = append(opts, freeze.OnUpdate(c.Freeze.OnUpdate))
	}
	if c.Freeze.OnFreeze != "" {
		opts = append(opts, freeze.OnFreeze(c.Freeze.OnFreeze))
	}
	if c.Freeze.NumericBuffers {
		opts = append(opts, freeze.WithNumericBuffers(true))
	}
	if c.Freeze.MaxDepth > 0 {
		opts = append(opts, freeze.WithMaxDepth(c.Freeze.MaxDepth))
	}
	if logger != nil {
		opts = append(opts, freeze.WithLogger(logger))
	}
	return opts
}

// LogConfig turns the logging section into a logging.Config.
func (c Config) LogConfig() logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		JSON:    c.Logging.JSON,
		Quiet:   c.Logging.Quiet,
		LogDir:  c.Logging.Dir,
		Service: "frost",
	}
}

// TelemetryConfig returns the telemetry section.
func (c Config) TelemetryConfig() telemetry.Config {
	return c.Telemetry
}
