package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

// Config represents the tpx configuration file (~/.config/tpx/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Pack defaults
	Codec        string `yaml:"codec"`
	ChunkSize    *int   `yaml:"chunk_size"`
	ChunkEntries *int   `yaml:"chunk_entries"`
	Binary       *bool  `yaml:"binary"`

	// Readers
	CacheChunks *int `yaml:"cache_chunks"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tpx", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Codec != "" {
		if _, err := chunkstream.ParseCodec(cfg.Codec); err != nil {
			return Config{}, err
		}
	}
	if cfg.ChunkSize != nil && *cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("chunk_size must be positive")
	}
	if cfg.ChunkEntries != nil && *cfg.ChunkEntries <= 0 {
		return Config{}, fmt.Errorf("chunk_entries must be positive")
	}
	return cfg, nil
}

// applyLoggingConfig applies config file defaults to the global logging
// flags when they were not set on the command line.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

type packFlags struct {
	binary       bool
	codec        string
	chunkSize    int
	chunkEntries int
}

func applyPackConfig(c *cli.Command, cfg Config, f *packFlags) {
	if cfg.Binary != nil && !c.IsSet("binary") {
		f.binary = *cfg.Binary
	}
	if cfg.Codec != "" && !c.IsSet("codec") {
		f.codec = cfg.Codec
	}
	if cfg.ChunkSize != nil && !c.IsSet("chunk-size") {
		f.chunkSize = *cfg.ChunkSize
	}
	if cfg.ChunkEntries != nil && !c.IsSet("chunk-entries") {
		f.chunkEntries = *cfg.ChunkEntries
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, cacheChunks *int) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.CacheChunks != nil && !c.IsSet("cache-chunks") {
		*cacheChunks = *cfg.CacheChunks
	}
}
