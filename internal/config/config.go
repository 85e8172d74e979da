// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "taipan.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Network         string           `yaml:"network"`
	Address         string           `yaml:"address"`
	SocketPath      string           `yaml:"socketPath"      split_words:"true"`
	DataDir         string           `yaml:"dataDir"         envconfig:"TAIPAN_DATA_DIR"`
	BindAddr        string           `yaml:"bindAddr"        split_words:"true"`
	IntersectPoints []IntersectPoint `yaml:"intersectPoints"`
	Finalize        FinalizeConfig   `yaml:"finalize"`
	Retry           RetryConfig      `yaml:"retry"`
	NetworkMagic    uint32           `yaml:"networkMagic"    split_words:"true"`
	MetricsPort     uint             `yaml:"metricsPort"     split_words:"true"`
	MinDepth        int              `yaml:"minDepth"        split_words:"true"`
	IntersectTip    bool             `yaml:"intersectTip"    split_words:"true"`
	DisableCursor   bool             `yaml:"disableCursor"   envconfig:"TAIPAN_DISABLE_CURSOR"`
	Tracing         bool             `yaml:"tracing"         envconfig:"TAIPAN_TRACING"`
	TracingStdout   bool             `yaml:"tracingStdout"   envconfig:"TAIPAN_TRACING_STDOUT"`
}

// IntersectPoint is a chain point as it appears in config files, with a
// hex-encoded block hash
type IntersectPoint struct {
	Hash string `yaml:"hash"`
	Slot uint64 `yaml:"slot"`
}

type FinalizeConfig struct {
	UntilHash string `yaml:"untilHash" envconfig:"TAIPAN_FINALIZE_UNTIL_HASH"`
	MaxBlocks uint64 `yaml:"maxBlocks" envconfig:"TAIPAN_FINALIZE_MAX_BLOCKS"`
}

// RetryConfig tunes the reconnect backoff. Durations are expressed as
// strings accepted by time.ParseDuration. Zero values fall back to the
// built-in defaults.
type RetryConfig struct {
	BackoffUnit   string `yaml:"backoffUnit"   envconfig:"TAIPAN_RETRY_BACKOFF_UNIT"`
	MaxBackoff    string `yaml:"maxBackoff"    envconfig:"TAIPAN_RETRY_MAX_BACKOFF"`
	MaxRetries    uint   `yaml:"maxRetries"    envconfig:"TAIPAN_RETRY_MAX_RETRIES"`
	BackoffFactor uint   `yaml:"backoffFactor" envconfig:"TAIPAN_RETRY_BACKOFF_FACTOR"`
}

var globalConfig = &Config{
	Network:     "mainnet",
	DataDir:     ".taipan",
	BindAddr:    "0.0.0.0",
	MetricsPort: 12798,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.taipan/taipan.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".taipan", "taipan.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/taipan/taipan.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/taipan/taipan.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("cardano", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

// Points converts the configured intersect points into protocol chain
// points
func (c *Config) Points() ([]ocommon.Point, error) {
	var points []ocommon.Point
	for _, intersectPoint := range c.IntersectPoints {
		hash, err := hex.DecodeString(intersectPoint.Hash)
		if err != nil {
			return nil, fmt.Errorf(
				"invalid intersect point hash %q: %w",
				intersectPoint.Hash,
				err,
			)
		}
		points = append(points, ocommon.NewPoint(intersectPoint.Slot, hash))
	}
	return points, nil
}
