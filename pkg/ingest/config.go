package ingest

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aelbannan/quranstore/pkg/fetch"
)

// RetryConfig mirrors fetch.RetryPolicy in file form.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// Config holds the run options for an ingestion pipeline. Zero values fall
// back to defaults, so a partial YAML file is fine.
type Config struct {
	DBPath       string      `yaml:"db_path"`
	Workers      int         `yaml:"workers"`
	BatchSize    int         `yaml:"batch_size"`
	ForceRefresh bool        `yaml:"force_refresh"`
	HezbsPerJuz  int         `yaml:"hezbs_per_juz"`
	APIBase      string      `yaml:"api_base"`
	AudioBase    string      `yaml:"audio_base"`
	Retry        RetryConfig `yaml:"retry"`
}

// DefaultConfig returns the baseline options.
func DefaultConfig() Config {
	return Config{
		DBPath:      "quran_arabic.db",
		Workers:     4,
		BatchSize:   50,
		HezbsPerJuz: 2,
		APIBase:     fetch.DefaultAPIBase,
		AudioBase:   fetch.DefaultAudioBase,
		Retry:       RetryConfig{MaxAttempts: 5, BaseDelayMS: 500, MaxDelayMS: 10000},
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// ApplyEnv overlays environment overrides. QURANSTORE_MAX_WORKERS bounds
// the fetch concurrency, same knob the pipeline has always honored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QURANSTORE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
	if v := os.Getenv("QURANSTORE_DB"); v != "" {
		c.DBPath = v
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.HezbsPerJuz <= 0 {
		c.HezbsPerJuz = d.HezbsPerJuz
	}
	if c.APIBase == "" {
		c.APIBase = d.APIBase
	}
	if c.AudioBase == "" {
		c.AudioBase = d.AudioBase
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = d.Retry.BaseDelayMS
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = d.Retry.MaxDelayMS
	}
}

// RetryPolicy converts the file form into the fetch layer's policy.
func (c Config) RetryPolicy() fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
	}
}
