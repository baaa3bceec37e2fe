// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the pathpredict YAML configuration and turns its task
// list into analysis tasks.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/pathpredict/services/predict/analysis"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("pathid", validatePathID)
	_ = validate.RegisterValidation("resultpattern", validateResultPattern)
}

// validatePathID accepts decimal or 0x-prefixed hex ids up to 128 bits.
func validatePathID(fl validator.FieldLevel) bool {
	_, err := pathid.Parse(fl.Field().String())
	return err == nil
}

// validateResultPattern accepts patterns taking exactly a name and a level.
func validateResultPattern(fl validator.FieldLevel) bool {
	out := fmt.Sprintf(fl.Field().String(), "name", 1)
	return !strings.Contains(out, "%!")
}

// Load reads the config at path over DefaultConfig and validates it.
//
// # Description
//
// When required is false a missing file yields the defaults; this is the
// behavior for the implicit ./pathpredict.yaml. Unknown keys are rejected so
// typos surface instead of silently falling back to defaults.
//
// # Outputs
//
//   - PathPredictConfig: The merged configuration.
//   - error: Wraps ErrInvalidConfig.
func Load(path string, required bool) (PathPredictConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
		return cfg, Validate(cfg)
	case err != nil:
		return cfg, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks struct tags and that task names are unique.
func Validate(cfg PathPredictConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	seen := make(map[string]int, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		if j, ok := seen[t.Name]; ok {
			return fmt.Errorf("%w: tasks %d and %d share name %q", ErrInvalidConfig, j, i, t.Name)
		}
		seen[t.Name] = i
	}
	return nil
}

// Resolve builds analysis tasks in configuration order. Relative roots are
// resolved against baseDir, normally the directory holding the config file.
func Resolve(cfg PathPredictConfig, baseDir string) ([]analysis.Task, error) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	tasks := make([]analysis.Task, 0, len(cfg.Tasks))
	for i, tc := range cfg.Tasks {
		target, err := pathid.Parse(tc.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %v", ErrInvalidConfig, tc.Name, err)
		}
		tasks = append(tasks, analysis.Task{
			Index:         i,
			Name:          tc.Name,
			Program:       tc.Program,
			Target:        target,
			TracePath:     abs(tc.Trace),
			TraceRoot:     abs(cfg.Paths.TraceRoot),
			TraceFile:     cfg.Paths.TraceFile,
			ProfileRoot:   abs(cfg.Paths.ProfileRoot),
			ProfileFile:   cfg.Paths.ProfileFile,
			ResultsDir:    abs(cfg.Paths.ResultsDir),
			ResultPattern: cfg.Paths.ResultPattern,
		})
	}
	return tasks, nil
}

// WriteDefault writes DefaultConfig with one example task to path. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	cfg := DefaultConfig()
	cfg.Workers = 0
	cfg.Tasks = []TaskConfig{{Name: "164.gzip", Target: "0x1"}}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
