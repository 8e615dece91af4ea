// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CODEGRAPH_"

type envSetter func(c *Config, value string) error

// envOverrides maps variable names, without EnvPrefix, to setters.
var envOverrides = map[string]envSetter{
	"PROJECT":       func(c *Config, v string) error { c.Project = v; return nil },
	"DB":            func(c *Config, v string) error { c.Storage.Path = v; return nil },
	"BACKEND":       func(c *Config, v string) error { c.Storage.Backend = v; return nil },
	"WORKERS":       func(c *Config, v string) error { return setInt(&c.Ingest.Workers, v) },
	"GIT":           func(c *Config, v string) error { c.Git.Backend = v; return nil },
	"RESOLVER":      func(c *Config, v string) error { return setBool(&c.Resolver.Enabled, v) },
	"RESOLVER_CMD":  func(c *Config, v string) error { c.Resolver.Command = v; return nil },
	"RESOLVER_ARGS": func(c *Config, v string) error { c.Resolver.Args = strings.Fields(v); return nil },
	"RESOLVER_TIMEOUT": func(c *Config, v string) error {
		return setDuration(&c.Resolver.Timeout, v)
	},
	"LOG_LEVEL":      func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"LOG_JSON":       func(c *Config, v string) error { return setBool(&c.Log.JSON, v) },
	"LOG_DIR":        func(c *Config, v string) error { c.Log.Dir = v; return nil },
	"API_ADDR":       func(c *Config, v string) error { c.API.Addr = v; return nil },
	"ENV":            func(c *Config, v string) error { c.Telemetry.Environment = v; return nil },
	"TRACE_EXPORTER": func(c *Config, v string) error { c.Telemetry.TraceExporter = v; return nil },
	"METRIC_EXPORTER": func(c *Config, v string) error {
		c.Telemetry.MetricExporter = v
		return nil
	},
	"OTLP_ENDPOINT": func(c *Config, v string) error { c.Telemetry.OTLPEndpoint = v; return nil },
}

// ApplyEnv applies CODEGRAPH_* overrides read through lookup. Empty
// values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envOverrides {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		if err := set(c, v); err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, name, err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
