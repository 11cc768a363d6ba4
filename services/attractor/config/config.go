// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the attractor tool configuration.
//
// Values are merged with priority env > file > defaults:
//
//	engine:
//	  parallelism: 8
//	  pivot: heuristic
//	  split_threshold: 0
//	log:
//	  level: info
//	store:
//	  path: ~/.attractor/runs
//	analysis:
//	  small_threshold: 5
//	telemetry:
//	  trace_exporter: none
//	  metric_exporter: prometheus
//	  metrics_addr: 127.0.0.1:9464
//	red:
//	  states: 300
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/attractor/pkg/logging"
	"github.com/AleutianAI/attractor/pkg/telemetry"
	"github.com/AleutianAI/attractor/services/attractor/engine"
	"github.com/AleutianAI/attractor/services/attractor/model"
	"github.com/AleutianAI/attractor/services/attractor/store"
)

// ErrInvalidConfig is returned when a loaded configuration fails
// validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the full tool configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RED       model.REDConfig `yaml:"red"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	Parallelism    int     `yaml:"parallelism" validate:"gte=1"`
	Pivot          string  `yaml:"pivot" validate:"oneof=naive heuristic"`
	HookBuffer     int     `yaml:"hook_buffer" validate:"gte=0"`
	SplitThreshold float64 `yaml:"split_threshold" validate:"gte=0"`
}

// LogConfig selects logger output.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// StoreConfig locates the run store.
type StoreConfig struct {
	Path       string        `yaml:"path" validate:"required_without=InMemory"`
	InMemory   bool          `yaml:"in_memory"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// AnalysisConfig tunes result classification.
type AnalysisConfig struct {
	// SmallThreshold is the largest state count, per parameter, of a
	// component that is still reported as stable.
	SmallThreshold int `yaml:"small_threshold" validate:"gte=1"`
}

// TelemetryConfig selects OpenTelemetry exporters and the Prometheus
// endpoint.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`

	// MetricsAddr serves /metrics while a run executes. Empty disables.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns defaults with the store under ~/.attractor.
func DefaultConfig() Config {
	storePath := ".attractor/runs"
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, ".attractor", "runs")
	}
	def := engine.DefaultConfig()
	tel := telemetry.DefaultConfig()
	return Config{
		Engine: EngineConfig{
			Parallelism: runtime.NumCPU(),
			Pivot:       string(def.Pivot),
			HookBuffer:  def.HookBuffer,
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Path:       storePath,
			GCInterval: store.DefaultConfig().GCInterval,
		},
		Analysis: AnalysisConfig{SmallThreshold: 5},
		Telemetry: TelemetryConfig{
			TraceExporter:  tel.TraceExporter,
			MetricExporter: tel.MetricExporter,
			OTLPEndpoint:   tel.OTLPEndpoint,
		},
		RED: model.DefaultREDConfig(),
	}
}

// Load returns the configuration at path merged over the defaults, with
// ATTRACTOR_* environment variables applied last. An empty path skips the
// file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ATTRACTOR_PARALLELISM"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Parallelism = i
		}
	}
	if v := os.Getenv("ATTRACTOR_PIVOT"); v != "" {
		cfg.Engine.Pivot = v
	}
	if v := os.Getenv("ATTRACTOR_SPLIT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.SplitThreshold = f
		}
	}
	if v := os.Getenv("ATTRACTOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ATTRACTOR_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("ATTRACTOR_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("ATTRACTOR_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("ATTRACTOR_METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("ATTRACTOR_SMALL_THRESHOLD"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.SmallThreshold = i
		}
	}
}

// Validate checks the struct tags of every section and the RED model
// limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.RED.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EngineConfig returns the engine settings with logger attached.
func (c Config) EngineConfig(logger *slog.Logger) engine.Config {
	return engine.Config{
		Parallelism:    c.Engine.Parallelism,
		Pivot:          engine.PivotPolicy(c.Engine.Pivot),
		HookBuffer:     c.Engine.HookBuffer,
		SplitThreshold: c.Engine.SplitThreshold,
		Logger:         logger,
	}
}

// StoreConfig returns the store settings with logger attached.
func (c Config) StoreConfig(logger *slog.Logger) store.Config {
	cfg := store.DefaultConfig()
	cfg.Path = c.Store.Path
	cfg.InMemory = c.Store.InMemory
	cfg.GCInterval = c.Store.GCInterval
	cfg.Logger = logger
	return cfg
}

// TelemetryConfig returns the exporter settings.
func (c Config) TelemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.TraceExporter = c.Telemetry.TraceExporter
	cfg.MetricExporter = c.Telemetry.MetricExporter
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	return cfg
}

// LoggingConfig returns the logger settings for service.
func (c Config) LoggingConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return logging.Config{
		Level:   level,
		JSON:    c.Log.JSON,
		LogDir:  c.Log.Dir,
		Service: service,
	}, nil
}
