// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/woozymasta/pathrules"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/farc"
)

// Config is the optional farctool YAML configuration.
type Config struct {
	// LogLevel is the default log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// Workers is the extraction worker count; zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// Classifier rules are appended after the built-in rules.
	Classifier []farc.ClassifierRule `yaml:"classifier"`
	// Compress rules select LZSS candidates when packing.
	Compress []CompressRule `yaml:"compress"`
	// MinCompressSize and MaxCompressSize bound compression candidates.
	MinCompressSize uint32 `yaml:"min_compress_size"`
	MaxCompressSize uint32 `yaml:"max_compress_size"`
}

// CompressRule is one gitignore-style compression rule.
type CompressRule struct {
	Pattern string `yaml:"pattern"`
	Exclude bool   `yaml:"exclude"`
}

// LoadConfig reads configuration from path. Empty path yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("config %s: workers must not be negative", path)
	}

	return cfg, nil
}

// ClassifierFor compiles built-in rules followed by configured rules.
func (c *Config) ClassifierFor() (*farc.Classifier, error) {
	if len(c.Classifier) == 0 {
		return farc.DefaultClassifier(), nil
	}

	return farc.NewClassifier(append(farc.DefaultRules(), c.Classifier...))
}

// PackOptions builds writer options from configuration and extra include patterns.
func (c *Config) PackOptions(extraCompress []string) farc.PackOptions {
	rules := make([]pathrules.Rule, 0, len(c.Compress)+len(extraCompress))
	for _, rule := range c.Compress {
		action := pathrules.ActionInclude
		if rule.Exclude {
			action = pathrules.ActionExclude
		}
		rules = append(rules, pathrules.Rule{Action: action, Pattern: rule.Pattern})
	}
	for _, pattern := range extraCompress {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}

	return farc.PackOptions{
		Compress:        rules,
		MinCompressSize: c.MinCompressSize,
		MaxCompressSize: c.MaxCompressSize,
	}
}

// parseLogLevel maps level name to slog level.
func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}

	return level, nil
}
