// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads codegraph configuration.
//
// Values are layered: the embedded defaults.yaml, then an optional project
// file, then CODEGRAPH_* environment variables. Command-line flags are
// applied by the caller after Load returns, followed by Validate.
//
// Thread Safety:
//
//	A loaded *Config is read-only by convention and safe to share.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"
)

// MaxFileSize is the largest configuration file accepted.
const MaxFileSize = 1024 * 1024

// DataDir is the per-project directory holding the default database.
const DataDir = ".codegraph"

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFileTooLarge is returned for configuration files over MaxFileSize.
	ErrFileTooLarge = errors.New("configuration file too large")
)

var loadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "codegraph_config_loads_total",
	Help: "Configuration loads by outcome",
}, []string{"outcome"})

var validate = validator.New()

// Config is the complete codegraph configuration.
type Config struct {
	// Project is the directory to ingest. Resolved to the nearest
	// enclosing git work tree by the CLI.
	Project string `yaml:"project" validate:"required"`

	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Git       GitConfig       `yaml:"git"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
}

// StorageConfig selects the graph store.
type StorageConfig struct {
	// Backend is "badger" or "sqlite".
	Backend string `yaml:"backend" validate:"oneof=badger sqlite"`

	// Path is the database location. Empty selects a default under
	// the project's DataDir.
	Path string `yaml:"path"`
}

// IngestConfig tunes discovery and extraction.
type IngestConfig struct {
	// Workers bounds parallel extraction. Zero means runtime.NumCPU().
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`

	MaxFileSize          int64    `yaml:"max_file_size" validate:"gte=0"`
	TolerateSyntaxErrors bool     `yaml:"tolerate_syntax_errors"`
	RespectGitignore     bool     `yaml:"respect_gitignore"`
	Include              []string `yaml:"include" validate:"min=1,dive,required"`
	Exclude              []string `yaml:"exclude" validate:"dive,required"`
}

// GitConfig selects the version-control collaborator.
type GitConfig struct {
	// Backend is "gogit", "cli", or "none".
	Backend string `yaml:"backend" validate:"oneof=gogit cli none"`
}

// ResolverConfig configures the optional language server.
type ResolverConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Command           string        `yaml:"command" validate:"required_if=Enabled true"`
	Args              []string      `yaml:"args"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" validate:"required"`
	Environment    string  `yaml:"environment"`
	TraceExporter  string  `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string  `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	OTLPInsecure   bool    `yaml:"otlp_insecure"`
	SampleRate     float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// APIConfig configures the HTTP read API.
type APIConfig struct {
	Addr         string        `yaml:"addr" validate:"hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

// Default returns the embedded defaults with Workers resolved.
func Default() (*Config, error) {
	var cfg Config
	if err := decode(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	cfg.resolve()
	return &cfg, nil
}

// Load builds a Config from the defaults, the file at path when path is
// not empty, and the environment.
//
// Description:
//
//	The file is decoded over the defaults, so it only needs the keys it
//	changes. Unknown keys are rejected. Environment overrides follow (see
//	ApplyEnv). The result is validated before it is returned.
//
// Inputs:
//
//	path - Optional YAML file.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Wraps ErrInvalidConfig, ErrFileTooLarge, or a read/parse error.
func Load(path string) (*Config, error) {
	cfg, err := load(path, os.LookupEnv)
	if err != nil {
		loadTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	loadTotal.WithLabelValues("success").Inc()
	return cfg, nil
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := decode(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func decode(data []byte, out *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolve fills values whose defaults depend on the host.
func (c *Config) resolve() {
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = runtime.NumCPU()
	}
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalidConfig, f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DatabasePath returns Storage.Path, or the backend's default location
// under the project's DataDir.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	name := "graph"
	if c.Storage.Backend == "sqlite" {
		name = "graph.sqlite"
	}
	return filepath.Join(c.Project, DataDir, name)
}
